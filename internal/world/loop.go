// Package world implements the single-threaded tick loop: one process
// owns the player/NPC slot tables and steps them through ten ordered
// phases every 600ms, rebasing the schedule on overrun rather than
// accumulating debt.
package world

import (
	"context"
	"log/slog"
	"time"

	"github.com/rt4serv/rt4serv/internal/buf"
	"github.com/rt4serv/rt4serv/internal/coord"
	"github.com/rt4serv/rt4serv/internal/netsession"
	"github.com/rt4serv/rt4serv/internal/protoreg"
	"github.com/rt4serv/rt4serv/internal/script"
	"github.com/rt4serv/rt4serv/internal/slotlist"
	"github.com/rt4serv/rt4serv/internal/xtea"
)

// DefaultTick is the reference tick duration.
const DefaultTick = 600 * time.Millisecond

// cycleStatsWindow is the number of most-recent tick durations kept
// for the rolling aggregate log.
const cycleStatsWindow = 12

// aggregateEvery is how many ticks elapse between aggregate timing
// logs.
const aggregateEvery = 10

const (
	logoutForceThreshold = 100
	idleLogoutThreshold  = 50
)

const worldFullProtocolID = 7
const mapRebuildNormalProtocolID = 162

// Player is one connected player's world-visible state: its network
// session plus the bookkeeping the logout rules and login/logout
// phases need. Game-content fields (inventory, stats, position) live
// outside this package; World only needs enough to drive the tick.
type Player struct {
	Session  *netsession.Session
	Username string
	Coord    coord.Grid

	InitialConnectTick int64
	LastConnected       int64
	LastResponse        int64

	RequestLogout     bool
	RequestIdleLogout bool
	LoggingOut        bool
	ForceLogout       bool
	PreventLogoutUntil int64

	// Protect and PathingDelayed back script.ProtectedPlayer: protected
	// script access is denied (absent force) while either is true.
	Protect       bool
	PathingDelayed bool
}

// Kind identifies Player as a script.KindPlayer entity.
func (p *Player) Kind() script.EntityKind { return script.KindPlayer }

// Protected reports whether the player currently holds protected
// script access.
func (p *Player) Protected() bool { return p.Protect }

// SetProtected sets or clears protected script access.
func (p *Player) SetProtected(v bool) { p.Protect = v }

// Delayed reports whether the player is mid-pathing delay. Movement
// content is out of this server's named scope, so this only reflects
// whatever PathingDelayed was last set to.
func (p *Player) Delayed() bool { return p.PathingDelayed }

// NPC is the minimal world-visible NPC shape the tick loop touches
// (AI/regen/movement content lives in higher-level game packages not
// named by this server's scope).
type NPC struct {
	Active bool
}

// pendingLogin is a fully-authenticated session waiting for a slot,
// published by a per-connection I/O task onto World's MPSC queue.
type pendingLogin struct {
	session  *netsession.Session
	username string
	ipv4Last byte
}

// World owns the player/NPC slot tables, the tick counter, and the
// rolling cycle-duration stats. All mutation of game state happens on
// the single goroutine that calls Run.
type World struct {
	players *slotlist.EntityList[Player]
	npcs    *slotlist.EntityList[NPC]

	registry *protoreg.Registry
	quotas   netsession.Quotas
	xteaKeys *xtea.Table

	zones       *coord.ZoneGrid
	activeZones []zoneCoord

	tick int64

	cycleStats  [cycleStatsWindow]time.Duration
	statsIndex  int

	pendingLogins chan pendingLogin
}

// zoneCoord is a zone grid cell flagged active during the current
// tick's zones phase, remembered so cleanup can unflag exactly what
// was set rather than walking the whole grid.
type zoneCoord struct {
	x, z uint16
}

// New builds a World with the given player/NPC slot capacities.
// xteaKeys feeds the on-login build-area rebuild; it may be nil, in
// which case the rebuild is skipped (tests that don't care about it).
func New(registry *protoreg.Registry, quotas netsession.Quotas, playerCapacity, npcCapacity int, xteaKeys *xtea.Table) *World {
	return &World{
		players:       slotlist.New[Player](playerCapacity, 0),
		npcs:          slotlist.New[NPC](npcCapacity, 0),
		registry:      registry,
		quotas:        quotas,
		xteaKeys:      xteaKeys,
		zones:         coord.NewZoneGrid(),
		pendingLogins: make(chan pendingLogin, 64),
	}
}

// RegisterOutbound binds the world loop's own outbound message types
// (the capacity-rejection reply and the on-login build-area rebuild)
// against registry. Gameplay content message types beyond these are
// out of this server's scope and register elsewhere, if ever.
func RegisterOutbound(registry *protoreg.Registry) {
	registry.RegisterOutbound("WORLD_FULL", worldFullProtocolID, func(b *buf.Buffer, message any) {})
	registry.RegisterOutbound("MAP_REBUILD_NORMAL", mapRebuildNormalProtocolID, func(b *buf.Buffer, message any) {
		b.WriteBytes(message.([]byte))
	})
}

// Tick returns the current tick counter.
func (w *World) Tick() int64 { return w.tick }

// SubmitLogin enqueues a freshly-authenticated session for insertion
// during the next "logins" phase. Blocking send is acceptable: accept
// is slow relative to the tick.
func (w *World) SubmitLogin(session *netsession.Session, username string, ipv4Last byte) {
	w.pendingLogins <- pendingLogin{session: session, username: username, ipv4Last: ipv4Last}
}

// Run drives the tick loop until ctx is cancelled. Each cycle rebases
// from its own start time rather than a fixed ticker, so an overrun
// cycle never leaves accumulated debt for the next one.
func (w *World) Run(ctx context.Context, tickDuration time.Duration) error {
	if tickDuration <= 0 {
		tickDuration = DefaultTick
	}

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return ctx.Err()
		default:
		}

		start := time.Now()
		w.runCycle()
		elapsed := time.Since(start)

		w.recordCycleStats(elapsed)
		if w.tick%aggregateEvery == 0 {
			w.logAggregateStats()
		}

		remaining := tickDuration - elapsed
		if remaining <= tickDuration/2 {
			slog.Warn("world: tick overrun", "tick", w.tick, "elapsed", elapsed, "budget", tickDuration)
		}
		if remaining > 0 {
			select {
			case <-ctx.Done():
				w.shutdown()
				return ctx.Err()
			case <-time.After(remaining):
			}
		}

		w.tick++
	}
}

func (w *World) runCycle() {
	w.phaseWorld()
	w.phaseIn()
	w.phaseNPCs()
	w.phasePlayers()
	w.phaseLogouts()
	w.phaseLogins()
	w.phaseZones()
	w.phaseInfo()
	w.phaseOut()
	w.phaseCleanup()
}

func (w *World) recordCycleStats(d time.Duration) {
	w.cycleStats[w.statsIndex%cycleStatsWindow] = d
	w.statsIndex++
}

func (w *World) logAggregateStats() {
	count := w.statsIndex
	if count > cycleStatsWindow {
		count = cycleStatsWindow
	}
	if count == 0 {
		return
	}

	var sum, max time.Duration
	min := w.cycleStats[0]
	for i := 0; i < count; i++ {
		d := w.cycleStats[i]
		sum += d
		if d > max {
			max = d
		}
		if d < min {
			min = d
		}
	}
	slog.Info("world: cycle stats", "tick", w.tick, "min", min, "avg", sum/time.Duration(count), "max", max)
}

// phaseWorld runs the world-queue/NPC spawn-and-hunt AI step. NPC
// game-content AI is out of this server's named scope; this phase
// only touches active NPCs' bookkeeping.
func (w *World) phaseWorld() {
	w.npcs.Each(func(id int, npc *NPC) bool {
		_ = npc // active NPCs would be driven here by spawn/hunt AI
		return true
	})
}

// phaseIn drains each connected player's inbound packets up to the
// configured category quotas and bumps last_connected.
func (w *World) phaseIn() {
	w.players.Each(func(id int, p *Player) bool {
		if p.Session == nil || p.Session.Closed() {
			return true
		}
		if err := p.Session.DrainInbound(p, w.quotas); err != nil {
			slog.Warn("world: session fault, logging out", "player", id, "error", err)
			p.LoggingOut = true
			return true
		}
		p.LastConnected = w.tick
		return true
	})
}

// phaseNPCs resumes suspended NPC scripts, regen, timers, queues,
// movement, and mode transitions — game-content behavior out of this
// server's named scope; the phase boundary is preserved so a future
// content layer has a fixed slot to run in.
func (w *World) phaseNPCs() {}

// phasePlayers resumes suspended player scripts and drains the
// primary/weak/strong/soft queues, timers, and movement — as with
// phaseNPCs, the content itself lives outside this package's scope.
func (w *World) phasePlayers() {}

// phaseLogouts evaluates the logout timeout rules for every connected
// player and schedules slot removal for whichever should leave.
func (w *World) phaseLogouts() {
	var toRemove []int
	w.players.Each(func(id int, p *Player) bool {
		elapsedSinceConnect := w.tick - p.InitialConnectTick

		if elapsedSinceConnect-p.LastResponse >= logoutForceThreshold {
			p.LoggingOut = true
			p.ForceLogout = true
		} else if elapsedSinceConnect-p.LastConnected >= idleLogoutThreshold {
			p.RequestIdleLogout = true
		}

		if p.RequestLogout || p.RequestIdleLogout {
			if w.tick >= p.PreventLogoutUntil {
				p.LoggingOut = true
			}
			p.RequestLogout = false
			p.RequestIdleLogout = false
		}

		if p.LoggingOut && (p.ForceLogout || w.tick >= p.PreventLogoutUntil) {
			toRemove = append(toRemove, id)
		}
		return true
	})

	for _, id := range toRemove {
		if p := w.players.Get(id); p != nil && p.Session != nil {
			p.Session.Close()
		}
		w.players.Remove(id)
	}
}

// phaseLogins drains the pending-logins queue, placing each session
// into a free slot (WORLD_FULL reply and close if none is available)
// and running on-login setup.
func (w *World) phaseLogins() {
	for {
		select {
		case login := <-w.pendingLogins:
			w.acceptLogin(login)
		default:
			return
		}
	}
}

func (w *World) acceptLogin(login pendingLogin) {
	id, err := w.players.NextForIPv4(login.ipv4Last)
	if err != nil {
		slog.Warn("world: no free player slot, rejecting login")
		_ = login.session.SendImmediate("WORLD_FULL", worldFullProtocolID)
		login.session.Close()
		return
	}

	p := &Player{
		Session:             login.session,
		Username:            login.username,
		InitialConnectTick:  w.tick,
		LastConnected:       w.tick,
		LastResponse:        w.tick,
		PreventLogoutUntil:  w.tick,
	}
	if err := w.players.Set(id, p); err != nil {
		slog.Warn("world: failed to seat login", "error", err)
		login.session.Close()
		return
	}

	// On-login build-area rebuild (spec's phase-6 login setup). There is
	// no persisted prior origin to compare against on a fresh login, so
	// this always forces the send, the same as a reconnect would.
	if w.xteaKeys != nil {
		if err := p.Session.RebuildBuildArea(p.Coord, w.xteaKeys, true); err != nil {
			slog.Warn("world: build-area rebuild failed, logging out", "player", id, "error", err)
			p.LoggingOut = true
		}
	}
}

// phaseZones builds the active-zone set for this tick: every connected
// player's current zone is flagged dirty on the shared grid. Loc/obj
// despawn/respawn against that set is content out of this server's
// named scope; the flagging itself is the part the grid invariant
// depends on, so it runs unconditionally.
func (w *World) phaseZones() {
	w.players.Each(func(id int, p *Player) bool {
		if p.Session == nil || p.Session.Closed() {
			return true
		}
		x, z := p.Coord.ZoneX(), p.Coord.ZoneZ()
		w.zones.Flag(int(x), int(z))
		w.activeZones = append(w.activeZones, zoneCoord{x: x, z: z})
		return true
	})
}

// phaseInfo translates player/NPC movement into wire-level info
// updates — deferred to the per-protocol message builders, which are
// out of this package's scope.
func (w *World) phaseInfo() {}

// phaseOut flushes each connected player's buffered outbound bytes.
func (w *World) phaseOut() {
	w.players.Each(func(id int, p *Player) bool {
		if p.Session == nil || p.Session.Closed() {
			return true
		}
		if err := p.Session.FlushBuffered(); err != nil {
			slog.Warn("world: flush failed, logging out", "player", id, "error", err)
			p.LoggingOut = true
		}
		return true
	})
}

// phaseCleanup resets per-tick flags. Unflagging exactly the zones this
// tick's phaseZones set keeps the grid blank at the start of the next
// tick, per the zone grid's clear-each-cycle invariant. NPC/inventory
// dirty-flag resets belong to the content layers this server's scope
// excludes.
func (w *World) phaseCleanup() {
	for _, z := range w.activeZones {
		w.zones.Unflag(int(z.x), int(z.z))
	}
	w.activeZones = w.activeZones[:0]
}

// shutdown logs out every connected player and releases their slots.
func (w *World) shutdown() {
	var ids []int
	w.players.Each(func(id int, p *Player) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		if p := w.players.Get(id); p != nil && p.Session != nil {
			p.Session.Close()
		}
		w.players.Remove(id)
	}
}
