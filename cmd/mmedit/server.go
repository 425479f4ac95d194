package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/youruser/mmedit/internal/api"
	"github.com/youruser/mmedit/internal/config"
	"github.com/youruser/mmedit/internal/editor"
	"github.com/youruser/mmedit/internal/mindmap"
	"github.com/youruser/mmedit/internal/prefs"
	"github.com/youruser/mmedit/internal/push"
	"github.com/youruser/mmedit/internal/session"
	"github.com/youruser/mmedit/internal/textedit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON-lines protocol on stdin/stdout",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

// server routes protocol requests to the editor controller, the assist
// and chat sessions and the push channel. Every event goes out through
// respond.
type server struct {
	out       io.Writer
	respondMu sync.Mutex

	ctx    context.Context
	cfg    *config.Config
	client *api.Client

	mindmap *mindmap.View
	ctrl    *editor.Controller
	assist  *session.Assist
	chat    *session.Chat
	push    *push.Manager

	pushOnce sync.Once
	wg       sync.WaitGroup
}

func newServer(ctx context.Context, cfg *config.Config, store *prefs.Store, out io.Writer) *server {
	theme := mindmap.ParseTheme(*cfg.Theme)
	if p, err := store.Load(); err != nil {
		log.Warn("Failed to load preferences from %s: %v", store.Path(), err)
	} else if p.Theme != "" {
		theme = mindmap.ParseTheme(p.Theme)
	}

	s := &server{
		out:    out,
		ctx:    ctx,
		cfg:    cfg,
		client: api.NewClient(cfg.ServerURL),
	}
	ev := &events{s: s}

	s.mindmap = mindmap.NewView(ev, theme)
	s.ctrl = editor.New(s.client, ev, s.mindmap, store)
	s.assist = session.NewAssist(s.client, ev, session.SystemClipboard{})
	s.chat = session.NewChat(s.client, ev)
	s.push = push.NewManager(cfg.WSURL, s.pushMessage, s.connectionChanged)
	return s
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		respondTo(os.Stdout, "", errorResponse(err))
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if log.Enabled() {
		fmt.Fprintf(os.Stderr, "mmedit: debug logging enabled\n")
	}
	log.Info("mmedit %s serving (server: %s, ws: %s)", versionString(), cfg.ServerURL, cfg.WSURL)

	s := newServer(ctx, cfg, prefs.NewStore(""), os.Stdout)
	err = s.serve(os.Stdin)
	cancel()
	s.wait()
	return err
}

// serve reads one request per line until in is exhausted.
func (s *server) serve(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.handleRequest(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			s.respond("", map[string]any{
				"type":    "error",
				"message": "Request too large (max 1MB). Save the file and edit it in smaller pieces.",
			})
		}
		log.Error("stdin error: %v", err)
		return err
	}
	return nil
}

// wait blocks until streams and the push channel have stopped.
func (s *server) wait() {
	s.wg.Wait()
}

// async runs fn on its own goroutine so the request loop stays responsive.
func (s *server) async(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *server) handleRequest(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}

	var req map[string]any
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		log.Error("Invalid JSON request: %s", line)
		s.respond("", map[string]any{"type": "error", "message": "Invalid JSON"})
		return
	}

	action, _ := req["action"].(string)
	log.Request(action, line)
	reqID := requestID(req)

	switch action {
	case "ping":
		s.respond(reqID, map[string]any{"type": "ok"})

	case "version":
		s.respond(reqID, map[string]any{"type": "version", "version": versionString()})

	case "init":
		if err := s.ctrl.Init(s.ctx); err != nil {
			s.respond(reqID, errorResponse(err))
		} else {
			s.respond(reqID, map[string]any{"type": "ok"})
		}
		s.checkStatus(s.ctx)
		s.startPush()

	case "list_files":
		if err := s.ctrl.LoadFiles(s.ctx); err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		s.respond(reqID, map[string]any{"type": "ok"})

	case "select_file":
		path, _ := req["path"].(string)
		if path == "" {
			s.respond(reqID, map[string]any{"type": "error", "message": "Missing required field: path"})
			return
		}
		discard, _ := req["discard"].(bool)
		err := s.ctrl.SelectFile(s.ctx, path, editor.ConfirmFunc(func(string) bool { return discard }))
		switch {
		case errors.Is(err, editor.ErrDiscardDeclined):
			s.respond(reqID, map[string]any{
				"type":    "confirm_required",
				"path":    path,
				"message": editor.DiscardPrompt,
			})
		case err != nil:
			s.respond(reqID, errorResponse(err))
		default:
			s.respond(reqID, map[string]any{"type": "ok"})
		}

	case "edit":
		content, ok := req["content"].(string)
		if !ok {
			s.respond(reqID, map[string]any{"type": "error", "message": "Missing required field: content"})
			return
		}
		s.ctrl.Edit(content)
		s.respond(reqID, map[string]any{"type": "ok"})

	case "set_selection":
		start, okStart := intField(req, "start")
		end, okEnd := intField(req, "end")
		if !okStart || !okEnd {
			s.respond(reqID, map[string]any{"type": "error", "message": "Missing required fields: start, end"})
			return
		}
		s.ctrl.SetSelection(textedit.Selection{Start: start, End: end})
		s.respond(reqID, map[string]any{"type": "ok"})

	case "save":
		saved, err := s.ctrl.Save(s.ctx)
		if err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		s.respond(reqID, map[string]any{"type": "ok", "saved": saved})

	case "refresh":
		if err := s.ctrl.Refresh(s.ctx); err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		s.respond(reqID, map[string]any{"type": "ok"})

	case "fit":
		s.ctrl.Fit()
		s.respond(reqID, map[string]any{"type": "ok"})

	case "toggle_theme":
		theme := s.ctrl.ToggleTheme()
		s.respond(reqID, map[string]any{"type": "ok", "theme": string(theme)})

	case "edit_node":
		oldText, _ := req["old_text"].(string)
		newText, _ := req["new_text"].(string)
		applied, err := s.ctrl.EditNodeText(s.ctx, oldText, newText)
		if err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		s.respond(reqID, map[string]any{"type": "ok", "applied": applied})

	case "assist":
		assistAction, _ := req["assist_action"].(string)
		if assistAction == "" {
			s.respond(reqID, map[string]any{"type": "error", "message": "Missing required field: assist_action"})
			return
		}
		prompt, _ := req["custom_prompt"].(string)
		in := session.AssistInput{
			Action:       assistAction,
			CustomPrompt: prompt,
			Doc:          s.ctrl.Document(),
		}
		if path := s.ctrl.Cursor().CurrentPath; path != "" {
			in.Context = "File: " + path
		}
		s.async(func() {
			if err := s.assist.Start(s.ctx, in); err != nil {
				s.respond(reqID, errorResponse(err))
				return
			}
			s.respond(reqID, map[string]any{"type": "ok"})
		})

	case "assist_apply":
		if err := s.assist.Apply(s.ctrl); err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		s.respond(reqID, map[string]any{"type": "ok"})

	case "assist_copy":
		if err := s.assist.Copy(); err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		s.respond(reqID, map[string]any{"type": "ok"})

	case "chat_send":
		message, _ := req["message"].(string)
		s.async(func() {
			if err := s.chat.Send(s.ctx, message); err != nil {
				s.respond(reqID, errorResponse(err))
				return
			}
			s.respond(reqID, map[string]any{"type": "ok"})
		})

	case "request_sync":
		if err := s.push.RequestSync(); err != nil {
			s.respond(reqID, errorResponse(err))
			return
		}
		s.respond(reqID, map[string]any{"type": "ok"})

	default:
		s.respond(reqID, map[string]any{"type": "error", "message": "Unknown action: " + action})
	}
}

// checkStatus asks the server which AI backends are usable and reports both.
func (s *server) checkStatus(ctx context.Context) {
	ai, err := s.client.AIStatus(ctx)
	if err != nil {
		log.Warn("AI status check failed: %v", err)
		ai = api.Status{Message: err.Error()}
	}
	s.assist.SetAvailable(ai.Available, ai.Message)
	s.respond("", map[string]any{"type": "ai_status", "available": ai.Available, "message": ai.Message})

	agent, err := s.client.AgentStatus(ctx)
	if err != nil {
		log.Warn("Agent status check failed: %v", err)
		agent = api.Status{Message: err.Error()}
	}
	s.chat.SetAvailable(agent.Available)
	s.respond("", map[string]any{"type": "agent_status", "available": agent.Available, "message": agent.Message})
}

// startPush runs the push channel for the lifetime of the server. Repeated
// init requests do not open a second connection.
func (s *server) startPush() {
	s.pushOnce.Do(func() {
		s.async(func() {
			if err := s.push.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Push channel stopped: %v", err)
			}
		})
	})
}

func (s *server) pushMessage(msg push.Message) {
	s.ctrl.HandlePush(s.ctx, msg)
}

func (s *server) connectionChanged(connected bool) {
	s.ctrl.HandleConnection(s.ctx, connected)
	s.respond("", map[string]any{"type": "connection", "connected": connected})
}

func intField(req map[string]any, key string) (int, bool) {
	switch v := req[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

func errorResponse(err error) map[string]any {
	var msg string
	switch {
	case errors.Is(err, editor.ErrDiscardDeclined):
		msg = "Unsaved changes were kept"
	case errors.Is(err, session.ErrEmptyContent):
		msg = session.EmptyContentPlaceholder
	case errors.Is(err, session.ErrEmptyPrompt):
		msg = "Enter a custom prompt first"
	case errors.Is(err, session.ErrUnavailable):
		msg = err.Error()
	case errors.Is(err, session.ErrNothingToApply):
		msg = "No AI suggestion to apply"
	case errors.Is(err, session.ErrEmptyMessage):
		msg = "Message is empty"
	case errors.Is(err, session.ErrBusy):
		msg = "Another message is still being answered"
	case errors.Is(err, session.ErrAgentUnavailable):
		msg = "Chat agent is not available"
	case errors.Is(err, push.ErrNotConnected):
		msg = "Not connected to the server"
	case errors.Is(err, config.ErrInvalidJSON):
		msg = "Invalid config file: ~/.config/mmedit/config.json"
	case errors.Is(err, config.ErrInvalidTheme), errors.Is(err, config.ErrInvalidServerURL):
		msg = "Invalid config: " + err.Error()
	default:
		msg = err.Error()
	}
	return map[string]any{"type": "error", "message": msg}
}

func (s *server) respond(reqID string, data map[string]any) {
	s.respondMu.Lock()
	defer s.respondMu.Unlock()
	respondTo(s.out, reqID, data)
}

func respondTo(w io.Writer, reqID string, data map[string]any) {
	out, _ := json.Marshal(addResponseID(reqID, data))
	msgType, _ := data["type"].(string)
	log.Response(msgType, string(out))
	fmt.Fprintln(w, string(out))
}

func addResponseID(reqID string, data map[string]any) map[string]any {
	if reqID == "" {
		return data
	}
	data["request_id"] = reqID
	return data
}

func requestID(req map[string]any) string {
	switch v := req["request_id"].(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return ""
	}
}
