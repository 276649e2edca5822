package room

import (
	"context"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/identity"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/pkg/protocol"
)

// randIntn is swappable in tests to pin the random host choice.
var randIntn = rand.IntN

type phase uint8

const (
	phaseSelectChart phase = iota
	phaseWaitForReady
	phasePlaying
)

// internalState is the server-side room state. started, results and
// aborted are only populated during their owning phase.
type internalState struct {
	phase   phase
	started map[int32]struct{}
	results map[int32]identity.Record
	aborted map[int32]struct{}
}

func (s internalState) toClient(chartID *int32) protocol.RoomState {
	switch s.phase {
	case phaseWaitForReady:
		return protocol.RoomState{Type: protocol.RoomStateWaitingForReady}
	case phasePlaying:
		return protocol.RoomState{Type: protocol.RoomStatePlaying}
	default:
		return protocol.RoomState{Type: protocol.RoomStateSelectChart, ChartID: chartID}
	}
}

// RequireSelectChart returns ErrInvalidState unless the room is still
// picking a chart.
func (r *Room) RequireSelectChart() error {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	if r.state.phase != phaseSelectChart {
		return ErrInvalidState
	}
	return nil
}

// RequirePlaying returns ErrInvalidState unless a round is in progress.
func (r *Room) RequirePlaying() error {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	if r.state.phase != phasePlaying {
		return ErrInvalidState
	}
	return nil
}

// SetChart records the selected chart and notifies members. The caller
// has already verified phase and host privilege.
func (r *Room) SetChart(p Player, c identity.Chart) {
	r.Send(protocol.MsgSelectChart{User: p.ID(), Name: c.Name, ID: c.ID})
	r.chartMu.Lock()
	r.chart = &c
	r.chartMu.Unlock()
	r.OnStateChange()
}

// StartGame moves the room into ready-up, seeding the ready set with
// the host. The host may be the only member, so readiness is rechecked
// immediately.
func (r *Room) StartGame(ctx context.Context, p Player) error {
	r.stateMu.Lock()
	if r.state.phase != phaseSelectChart {
		r.stateMu.Unlock()
		return ErrInvalidState
	}
	if err := r.CheckHost(p); err != nil {
		r.stateMu.Unlock()
		return err
	}
	if _, ok := r.Chart(); !ok {
		r.stateMu.Unlock()
		return ErrNoChartSelected
	}
	r.resetGameTimes()
	r.Send(protocol.MsgGameStart{User: p.ID()})
	r.state = internalState{
		phase:   phaseWaitForReady,
		started: map[int32]struct{}{p.ID(): {}},
	}
	r.stateMu.Unlock()

	logging.Info(ctx, "room waiting for ready", zap.String("room_id", string(r.ID)))
	r.OnStateChange()
	r.CheckAllReady(ctx)
	return nil
}

// Ready marks p as ready for the pending round.
func (r *Room) Ready(ctx context.Context, p Player) error {
	r.stateMu.Lock()
	if r.state.phase != phaseWaitForReady {
		r.stateMu.Unlock()
		return ErrInvalidState
	}
	if _, ok := r.state.started[p.ID()]; ok {
		r.stateMu.Unlock()
		return ErrAlreadyReady
	}
	r.state.started[p.ID()] = struct{}{}
	r.Send(protocol.MsgReady{User: p.ID()})
	r.stateMu.Unlock()

	r.CheckAllReady(ctx)
	return nil
}

// CancelReady retracts p's readiness. When the host cancels, the whole
// round is called off and the room returns to chart selection.
func (r *Room) CancelReady(ctx context.Context, p Player) error {
	r.stateMu.Lock()
	if r.state.phase != phaseWaitForReady {
		r.stateMu.Unlock()
		return ErrInvalidState
	}
	if _, ok := r.state.started[p.ID()]; !ok {
		r.stateMu.Unlock()
		return ErrNotReady
	}
	delete(r.state.started, p.ID())

	if r.CheckHost(p) == nil {
		r.Send(protocol.MsgCancelGame{User: p.ID()})
		r.state = internalState{phase: phaseSelectChart}
		r.stateMu.Unlock()

		logging.Info(ctx, "round canceled by host",
			zap.String("room_id", string(r.ID)), zap.Int32("user_id", p.ID()))
		r.OnStateChange()
		return nil
	}
	r.Send(protocol.MsgCancelReady{User: p.ID()})
	r.stateMu.Unlock()
	return nil
}

// SubmitRecord stores p's play result. The caller has already verified
// that the record belongs to p.
func (r *Room) SubmitRecord(ctx context.Context, p Player, rec identity.Record) error {
	r.stateMu.Lock()
	if r.state.phase != phasePlaying {
		r.stateMu.Unlock()
		return ErrInvalidState
	}
	if _, ok := r.state.aborted[p.ID()]; ok {
		r.stateMu.Unlock()
		return ErrAborted
	}
	if _, ok := r.state.results[p.ID()]; ok {
		r.stateMu.Unlock()
		return ErrAlreadyUploaded
	}
	r.state.results[p.ID()] = rec
	r.Send(protocol.MsgPlayed{
		User:      p.ID(),
		Score:     rec.Score,
		Accuracy:  rec.Accuracy,
		FullCombo: rec.FullCombo,
	})
	r.stateMu.Unlock()

	r.CheckAllReady(ctx)
	return nil
}

// AbortPlay marks p as having given up on the current round.
func (r *Room) AbortPlay(ctx context.Context, p Player) error {
	r.stateMu.Lock()
	if r.state.phase != phasePlaying {
		r.stateMu.Unlock()
		return ErrInvalidState
	}
	if _, ok := r.state.results[p.ID()]; ok {
		r.stateMu.Unlock()
		return ErrAlreadyUploaded
	}
	if _, ok := r.state.aborted[p.ID()]; ok {
		r.stateMu.Unlock()
		return ErrAborted
	}
	r.state.aborted[p.ID()] = struct{}{}
	r.Send(protocol.MsgAbort{User: p.ID()})
	r.stateMu.Unlock()

	r.CheckAllReady(ctx)
	return nil
}

// CheckAllReady advances the state machine when the current phase's
// completion condition holds: everyone ready, or every player done.
// Conditions are re-verified under the write lock so a concurrent
// cancel or leave cannot slip a stale transition through.
func (r *Room) CheckAllReady(ctx context.Context) {
	r.stateMu.RLock()
	ready := r.readyComplete()
	played := r.playComplete()
	r.stateMu.RUnlock()

	if ready {
		r.startPlaying(ctx)
	} else if played {
		r.finishGame(ctx)
	}
}

// readyComplete reports whether every participant and every monitor is
// in the ready set. Callers hold stateMu.
func (r *Room) readyComplete() bool {
	if r.state.phase != phaseWaitForReady {
		return false
	}
	for _, p := range r.Users() {
		if _, ok := r.state.started[p.ID()]; !ok {
			return false
		}
	}
	for _, p := range r.Monitors() {
		if _, ok := r.state.started[p.ID()]; !ok {
			return false
		}
	}
	return true
}

// playComplete reports whether every participant has either submitted a
// record or aborted. Callers hold stateMu.
func (r *Room) playComplete() bool {
	if r.state.phase != phasePlaying {
		return false
	}
	for _, p := range r.Users() {
		if _, ok := r.state.results[p.ID()]; ok {
			continue
		}
		if _, ok := r.state.aborted[p.ID()]; ok {
			continue
		}
		return false
	}
	return true
}

func (r *Room) startPlaying(ctx context.Context) {
	r.stateMu.Lock()
	if !r.readyComplete() {
		r.stateMu.Unlock()
		return
	}
	r.Send(protocol.MsgStartPlaying{})
	r.resetGameTimes()
	r.state = internalState{
		phase:   phasePlaying,
		results: make(map[int32]identity.Record),
		aborted: make(map[int32]struct{}),
	}
	r.stateMu.Unlock()

	logging.Info(ctx, "game start", zap.String("room_id", string(r.ID)))
	r.OnStateChange()
}

func (r *Room) finishGame(ctx context.Context) {
	r.stateMu.Lock()
	if !r.playComplete() {
		r.stateMu.Unlock()
		return
	}
	r.Send(protocol.MsgGameEnd{})
	r.state = internalState{phase: phaseSelectChart}
	r.stateMu.Unlock()

	logging.Info(ctx, "game over", zap.String("room_id", string(r.ID)))
	if r.Cycle() {
		r.rotateHost(ctx)
	}
	r.OnStateChange()
}

// rotateHost hands the host role to the next participant in join order,
// wrapping past the end of the list.
func (r *Room) rotateHost(ctx context.Context) {
	users := r.Users()
	if len(users) == 0 {
		return
	}

	r.hostMu.Lock()
	old := r.host
	idx := 0
	if old != nil {
		for i, p := range users {
			if p.ID() == old.ID() {
				idx = (i + 1) % len(users)
				break
			}
		}
	}
	next := users[idx]
	r.host = next
	r.hostMu.Unlock()

	if old != nil {
		old.TrySend(protocol.ServerChangeHost{IsHost: false})
	}
	r.Send(protocol.MsgNewHost{User: next.ID()})
	next.TrySend(protocol.ServerChangeHost{IsHost: true})
	logging.Info(ctx, "host rotated",
		zap.String("room_id", string(r.ID)), zap.Int32("user_id", next.ID()))
}

// resetGameTimes clears every participant's telemetry clock ahead of a
// round. Callers may hold stateMu.
func (r *Room) resetGameTimes() {
	for _, p := range r.Users() {
		p.ResetGameTime()
	}
}
