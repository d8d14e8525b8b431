package graph

import (
	"context"
	"fmt"

	"devteam/pkg/dispatch"
	"devteam/pkg/logx"
	"devteam/pkg/metrics"
	"devteam/pkg/proto"
	"devteam/pkg/session"
	"devteam/pkg/team"
)

// NodeHumanWait is the suspension node. A parked session re-enters the
// pipeline at pm when the human responds.
const NodeHumanWait = "human_wait"

// TurnTaker is one role node of the graph. Satisfied by agent.Agent.
type TurnTaker interface {
	TakeTurn(ctx context.Context, transcript []proto.Message) (*proto.Turn, error)
	Name() string
	Role() string
}

// ToolExecutor is the tool-dispatch node. Satisfied by dispatch.Dispatcher.
type ToolExecutor interface {
	Dispatch(ctx context.Context, calls []proto.ToolCall) *dispatch.Result
}

// Runner drives one session through the graph until it parks at
// human_wait, finishes, or fails. The caller must hold the session's
// advance claim for the duration of Run.
type Runner struct {
	store            session.Store
	agents           map[string]TurnTaker
	dispatchers      map[string]ToolExecutor
	qaEnabled        bool
	maxQARework      int
	maxTurns         int
	finishOnComplete bool
	logger           *logx.Logger
}

// Config carries the pipeline shape knobs the runner needs.
type Config struct {
	QAEnabled   bool
	MaxQARework int
	MaxTurns    int
	// FinishOnComplete makes a completion sentinel terminal instead of
	// parking the session for end-of-cycle human review.
	FinishOnComplete bool
}

// NewRunner builds a runner over per-session collaborators. dispatchers
// is keyed by node so each role's tool allowlist holds at execution
// time, not just in the definitions the model sees.
func NewRunner(store session.Store, agents map[string]TurnTaker, dispatchers map[string]ToolExecutor, cfg Config) *Runner {
	return &Runner{
		store:            store,
		agents:           agents,
		dispatchers:      dispatchers,
		qaEnabled:        cfg.QAEnabled,
		maxQARework:      cfg.MaxQARework,
		maxTurns:         cfg.MaxTurns,
		finishOnComplete: cfg.FinishOnComplete,
		logger:           logx.NewLogger("graph"),
	}
}

// Run advances the session from its current node until it reaches a
// resting state. Every node's deltas are applied to the store
// incrementally so concurrent readers see progress in near-real-time.
func (r *Runner) Run(ctx context.Context, sessionID string) error {
	node, err := r.currentNode(sessionID)
	if err != nil {
		return err
	}

	for turns := 0; ; turns++ {
		if turns >= r.maxTurns {
			r.park(sessionID, proto.StatusError, "",
				proto.ErrorLogLine(fmt.Sprintf("run exceeded the turn budget (%d turns)", r.maxTurns)))
			return fmt.Errorf("session %s exceeded the turn budget", sessionID)
		}

		agent, ok := r.agents[node]
		if !ok {
			r.park(sessionID, proto.StatusError, "",
				proto.ErrorLogLine(fmt.Sprintf("no agent bound to node %q", node)))
			return fmt.Errorf("no agent bound to node %q", node)
		}

		transcript, err := r.transcript(sessionID)
		if err != nil {
			return err
		}

		turn, err := agent.TakeTurn(ctx, transcript)
		if err != nil {
			// Model failures are fatal for the run: prior log history is
			// preserved and the session parks in error state.
			r.park(sessionID, proto.StatusError, "", proto.ErrorLogLine(err.Error()))
			return err
		}

		next, done, err := r.applyTurn(ctx, sessionID, node, turn)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		node = next
	}
}

// applyTurn folds one turn into the session and decides the next node.
// done is true when the run parked.
func (r *Runner) applyTurn(ctx context.Context, sessionID, node string, turn *proto.Turn) (string, bool, error) {
	cls := Classify(turn)
	agentName := turn.AgentName

	switch cls.Kind {
	case KindToolCalls:
		if err := r.appendTurn(sessionID, node, turn, turn.LogLines); err != nil {
			return "", false, err
		}
		return r.runTools(ctx, sessionID, node, turn)

	case KindClarify:
		line := proto.AgentLogLine(agentName, cls.Text)
		if err := r.appendTurn(sessionID, node, turn, []string{line}); err != nil {
			return "", false, err
		}
		r.park(sessionID, proto.StatusWaitingForHuman, cls.Text)
		return "", true, nil

	case KindComplete, KindApprove:
		line := proto.AgentLogLine(agentName, cls.Text)
		if err := r.appendTurn(sessionID, node, turn, []string{line}); err != nil {
			return "", false, err
		}
		status := proto.StatusWaitingForHuman
		if r.finishOnComplete {
			status = proto.StatusFinished
		}
		r.park(sessionID, status, "")
		return "", true, nil

	case KindReject:
		return r.applyRejection(sessionID, node, turn, cls)

	default: // KindHandoff
		if err := r.appendTurn(sessionID, node, turn, turn.LogLines); err != nil {
			return "", false, err
		}
		next := team.NextRole(node, r.qaEnabled)
		if next == "" {
			// Last role handed off with no completion marker; treat the
			// content as the closing message and let the human review.
			r.park(sessionID, proto.StatusWaitingForHuman, "")
			return "", true, nil
		}
		return r.moveTo(sessionID, next)
	}
}

func (r *Runner) applyRejection(sessionID, node string, turn *proto.Turn, cls Classification) (string, bool, error) {
	line := proto.AgentLogLine(turn.AgentName, cls.Text)
	if err := r.appendTurn(sessionID, node, turn, []string{line}); err != nil {
		return "", false, err
	}

	var rework int
	if err := r.store.Update(sessionID, func(s *session.Session) {
		s.Rework++
		rework = s.Rework
	}); err != nil {
		return "", false, err
	}

	if rework > r.maxQARework {
		notice := fmt.Sprintf("QA rejected the implementation %d times; pausing for human review.", rework)
		_ = r.store.Update(sessionID, func(s *session.Session) {
			s.Log = append(s.Log, proto.SystemLogLine(notice))
		})
		r.park(sessionID, proto.StatusWaitingForHuman, notice)
		return "", true, nil
	}

	metrics.QARework.Inc()
	return r.moveTo(sessionID, team.RoleDeveloper)
}

// runTools executes the turn's tool calls and routes afterwards: control
// returns to the calling role unless the dispatch produced a hand-off
// artifact, in which case the next stage takes over.
func (r *Runner) runTools(ctx context.Context, sessionID, caller string, turn *proto.Turn) (string, bool, error) {
	dispatcher, ok := r.dispatchers[caller]
	if !ok {
		r.park(sessionID, proto.StatusError, "",
			proto.ErrorLogLine(fmt.Sprintf("no dispatcher bound to node %q", caller)))
		return "", false, fmt.Errorf("no dispatcher bound to node %q", caller)
	}
	result := dispatcher.Dispatch(ctx, turn.ToolCalls)

	if err := r.store.Update(sessionID, func(s *session.Session) {
		s.Transcript = append(s.Transcript, proto.NewToolMessage(result.Results))
		s.Log = append(s.Log, result.LogLines...)
		for _, artifact := range result.Artifacts {
			s.Artifacts[artifact.Path] = artifact.Content
		}
	}); err != nil {
		return "", false, err
	}

	next := caller
	for _, artifact := range result.Artifacts {
		switch artifact.Path {
		case team.RequirementsDoc:
			next = team.RoleArchitect
		case team.ArchitectureDoc:
			next = team.RoleDeveloper
		}
	}
	return r.moveTo(sessionID, next)
}

func (r *Runner) appendTurn(sessionID, node string, turn *proto.Turn, logLines []string) error {
	return r.store.Update(sessionID, func(s *session.Session) {
		s.Transcript = append(s.Transcript, proto.NewAgentMessage(turn.AgentName, turn.Content, turn.ToolCalls))
		s.Log = append(s.Log, logLines...)
		s.Node = node
	})
}

func (r *Runner) moveTo(sessionID, next string) (string, bool, error) {
	err := r.store.Update(sessionID, func(s *session.Session) {
		s.Node = next
	})
	return next, false, err
}

// park moves the session to a resting state. extraLog entries are
// appended before the status flips so pollers never see the status
// change without its explanation.
func (r *Runner) park(sessionID string, status proto.Status, question string, extraLog ...string) {
	node := NodeHumanWait
	if status != proto.StatusWaitingForHuman {
		node = ""
	}
	if err := r.store.Update(sessionID, func(s *session.Session) {
		s.Log = append(s.Log, extraLog...)
		s.Status = status
		s.Question = question
		s.Node = node
	}); err != nil {
		r.logger.Error("failed to park session %s: %v", sessionID, err)
		return
	}
	metrics.RunsCompleted.WithLabelValues(string(status)).Inc()
	r.logger.Info("session %s parked: %s", sessionID, status)
}

func (r *Runner) currentNode(sessionID string) (string, error) {
	snap, err := r.store.Get(sessionID)
	if err != nil {
		return "", err
	}
	if snap.Status != proto.StatusRunning {
		return "", fmt.Errorf("%w: session %s is %s", session.ErrInvalidState, sessionID, snap.Status)
	}
	if snap.Node == "" || snap.Node == NodeHumanWait {
		return "", fmt.Errorf("%w: session %s has no runnable node", session.ErrInvalidState, sessionID)
	}
	return snap.Node, nil
}

func (r *Runner) transcript(sessionID string) ([]proto.Message, error) {
	var transcript []proto.Message
	err := r.store.Update(sessionID, func(s *session.Session) {
		transcript = append([]proto.Message(nil), s.Transcript...)
	})
	return transcript, err
}
