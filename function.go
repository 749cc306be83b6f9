// Package mentorchat hosts the Cloud Functions of the mentor chat:
// sending messages, streaming a conversation, conversation lists and user profiles.
package mentorchat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	firebase "firebase.google.com/go/v4"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/klipach/mentorchat/audit"
	"github.com/klipach/mentorchat/auth"
	"github.com/klipach/mentorchat/chat"
	"github.com/klipach/mentorchat/config"
	"github.com/klipach/mentorchat/directory"
	"github.com/klipach/mentorchat/log"
	"github.com/klipach/mentorchat/profile"
	"github.com/klipach/mentorchat/store"
)

const (
	errorMsgLogField      = "errorMsg"
	userIDLogField        = "userID"
	roleLogField          = "role"
	counterpartIDLogField = "counterpartID"
	methodLogField        = "method"
)

func init() {
	functions.HTTP("SendMessage", SendMessage)
	functions.HTTP("Messages", Messages)
	functions.HTTP("Directory", Directory)
	functions.HTTP("Conversations", Conversations)
	functions.HTTP("Profile", Profile)
}

// server holds the dependencies shared by all functions of an instance.
type server struct {
	cfg       *config.Config
	verifier  *auth.Verifier
	store     store.Store
	audit     audit.Recorder
	directory directory.Builder
	pipeline  *chat.Pipeline
	sync      *chat.Synchronizer
	profiles  *profile.Service
}

func newServer(cfg *config.Config, verifier *auth.Verifier, st store.Store, rec audit.Recorder) (*server, error) {
	builder, err := directory.New(directory.Mode(cfg.DirectoryMode), st)
	if err != nil {
		return nil, err
	}
	return &server{
		cfg:       cfg,
		verifier:  verifier,
		store:     st,
		audit:     rec,
		directory: builder,
		pipeline:  chat.NewPipeline(st),
		sync:      chat.NewSynchronizer(st),
		profiles:  profile.NewService(st),
	}, nil
}

var (
	initOnce    sync.Once
	instance    *server
	instanceErr error
)

// defaultServer connects to Firebase once per instance. A failed
// initialization is kept and reported on every call.
func defaultServer() (*server, error) {
	initOnce.Do(func() {
		instance, instanceErr = connect(context.Background())
	})
	return instance, instanceErr
}

func connect(ctx context.Context) (*server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	var fbConfig *firebase.Config
	if cfg.ProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbConfig)
	if err != nil {
		return nil, fmt.Errorf("error initializing app: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Auth client: %w", err)
	}
	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Firestore client: %w", err)
	}

	var rec audit.Recorder = audit.Slog{}
	if !cfg.AuditDisabled {
		cloud, err := audit.NewCloud(ctx, cfg.ProjectID, cfg.AuditLogID)
		if err != nil {
			slog.Warn("audit log unavailable, using request log", slog.String(errorMsgLogField, err.Error()))
		} else {
			rec = cloud
		}
	}
	return newServer(cfg, auth.NewVerifier(authClient, cfg.AdminClaim), store.NewFirestore(fsClient), rec)
}

func serve(w http.ResponseWriter, r *http.Request, handle func(*server, http.ResponseWriter, *http.Request)) {
	s, err := defaultServer()
	if err != nil {
		log.LoggerFromContext(r.Context()).Error("function not initialized", slog.String(errorMsgLogField, err.Error()))
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	handle(s, w, r)
}

func SendMessage(w http.ResponseWriter, r *http.Request) { serve(w, r, (*server).sendMessage) }

func Messages(w http.ResponseWriter, r *http.Request) { serve(w, r, (*server).messages) }

func Directory(w http.ResponseWriter, r *http.Request) { serve(w, r, (*server).listDirectory) }

func Conversations(w http.ResponseWriter, r *http.Request) { serve(w, r, (*server).listConversations) }

func Profile(w http.ResponseWriter, r *http.Request) { serve(w, r, (*server).profile) }
