// Package render turns message text into HTML safe to embed in a chat view.
package render

import (
	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

const extensions = blackfriday.CommonExtensions | blackfriday.HardLineBreak

// policy is safe for concurrent use once built.
var policy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}()

// HTML renders markdown text and strips everything outside the UGC policy.
func HTML(text string) string {
	if text == "" {
		return ""
	}
	unsafe := blackfriday.Run([]byte(text), blackfriday.WithExtensions(extensions))
	return string(policy.SanitizeBytes(unsafe))
}
