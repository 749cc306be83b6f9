// Package catalog holds the static counterpart catalog: display names used by
// the admin directory and the profile and recommended questions shown as
// ephemeral cards in a conversation.
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

var (
	ErrUnknownCounterpart = errors.New("unknown counterpart")
	ErrNoQuestions        = errors.New("no recommended questions")
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("catalog").
		Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
		ParseFS(templateFS, "templates/*.tmpl"),
)

type Mentor struct {
	ID          string
	Name        string
	Field       string
	Company     string
	Experience  string
	Description string
	Questions   []string
}

var mentors = map[string]Mentor{
	"1": {
		ID:          "1",
		Name:        "마감히어로",
		Field:       "지역 기반 마감 할인 플랫폼",
		Company:     "주식회사 마히(MAHI)",
		Experience:  "소셜벤처",
		Description: "마감히어로는 동네 상점의 마감 할인 정보를 실시간으로 제공하는 지역 기반 플랫폼입니다. 음식물 폐기를 줄여 환경을 보호하고, 소상공인에게는 추가 수익을, 소비자에게는 알뜰한 쇼핑 기회를 제공합니다. 중소벤처기업부 예비창업패키지 선정, 학생창업유망팀 300+ 최종 선발 등 검증된 소셜벤처입니다.",
		Questions: []string{
			"마감 할인은 어떻게 이용하나요?",
			"소상공인 가입 방법이 궁금합니다",
			"어떤 지역에서 서비스를 이용할 수 있나요?",
			"할인율은 평균 얼마나 되나요?",
			"환경보호 효과는 어떻게 측정하나요?",
			"픽업 시간은 언제까지인가요?",
			"마감히어로의 비전이 궁금합니다",
			"신규 방문 고객이 많다는데 실제 효과가 있나요?",
		},
	},
}

// displayNames are the names the admin directory shows per counterpart id.
var displayNames = map[string]string{
	"1":  "이원준 (CJ제일제당)",
	"2":  "김서현 (삼성전자)",
	"3":  "박준혁 (LG전자)",
	"4":  "정다은 (카카오)",
	"5":  "최민수 (SK하이닉스)",
	"6":  "강유진 (현대자동차)",
	"7":  "윤재석 (네이버)",
	"8":  "송하늘 (LG화학)",
	"9":  "임동현 (SK이노베이션)",
	"10": "한서윤 (CJ제일제당)",
	"11": "오진우 (쿠팡)",
	"12": "배수진 (삼성전자)",
	"13": "서준호 (아모레퍼시픽)",
	"14": "안지혜 (LG AI연구원)",
	"15": "조민기 (현대제철)",
	"16": "홍민지 (카카오뱅크)",
	"17": "신동욱 (NHN)",
	"18": "유채원 (HYBE)",
	"19": "전승현 (삼성SDI)",
	"20": "권나연 (SK텔레콤)",
}

func DisplayName(counterpartID string) string {
	if name, ok := displayNames[counterpartID]; ok {
		return name
	}
	return "멘토 " + counterpartID
}

func Lookup(counterpartID string) (Mentor, bool) {
	m, ok := mentors[counterpartID]
	return m, ok
}

// ProfileCard renders the profile text shown by the "show profile" quick action.
func ProfileCard(counterpartID string) (string, error) {
	m, ok := Lookup(counterpartID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCounterpart, counterpartID)
	}
	return render("profile.tmpl", m)
}

// QuestionList renders the numbered recommended questions.
func QuestionList(counterpartID string) (string, error) {
	m, ok := Lookup(counterpartID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCounterpart, counterpartID)
	}
	if len(m.Questions) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoQuestions, counterpartID)
	}
	return render("questions.tmpl", m)
}

func render(name string, data any) (string, error) {
	var sb strings.Builder
	if err := templates.ExecuteTemplate(&sb, name, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
