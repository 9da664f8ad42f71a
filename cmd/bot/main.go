package main

import (
	"context"
	"flag"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"grovecraft.io/internal/client"
	"grovecraft.io/internal/logging"
	"grovecraft.io/internal/protocol"
	"grovecraft.io/internal/sim/worldgen"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:25565/v1/ws", "ws url")
		name  = flag.String("name", "bot", "player name")
		frame = flag.Duration("frame", 100*time.Millisecond, "decision interval")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "wander seed")
		debug = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	logger := logging.New("info", "text", *debug, nil).WithField("bot", *name)

	c := client.New(client.Config{URL: *url, Name: *name, Log: logger})
	c.Start()
	defer c.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	joinCtx, joinCancel := context.WithTimeout(ctx, 30*time.Second)
	err := c.WaitJoined(joinCtx)
	joinCancel()
	if err != nil {
		logger.WithError(err).Fatal("join")
	}
	r := c.Replica()
	logger.WithField("player", r.LocalID()).WithField("seed", r.Params().Seed).Info("joined")

	b := &brain{rng: rand.New(rand.NewSource(*seed)), params: r.Params()}
	ticker := time.NewTicker(*frame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		v := r.Frame(*frame)
		if act := b.decide(v); act.kind != actNone {
			if err := perform(r, act); err != nil {
				logger.WithError(err).Debug("action")
			}
		}
		if rej, ok := r.LastRejection(); ok && rej.Code != "" {
			logger.WithFields(logrus.Fields{"code": rej.Code, "target": rej.TargetID}).Debug("rejected")
		}
	}
}

type actKind int

const (
	actNone actKind = iota
	actMove
	actAttack
	actPickup
	actEat
)

type action struct {
	kind   actKind
	target string
	x, y   float64
}

// brain picks one action per frame: eat when hungry, then pick up items in
// reach, then hit the nearest resource in reach, else keep wandering.
type brain struct {
	rng    *rand.Rand
	params protocol.WorldParams

	goalX, goalY float64
	hasGoal      bool
}

const hungryAt = 60

func (b *brain) decide(v client.View) action {
	me, ok := local(v)
	if !ok {
		return action{}
	}
	reach := b.params.ActionRange * 0.9

	if me.Hunger >= hungryAt {
		for _, st := range v.Inventory {
			if _, edible := worldgen.Nutrition(st.Item); edible && st.Count > 0 {
				return action{kind: actEat, target: st.Item}
			}
		}
	}

	for _, it := range v.Items {
		if !it.Collected && dist(me.X, me.Y, it.X, it.Y) <= reach {
			return action{kind: actPickup, target: it.ID}
		}
	}

	best, bestD := "", math.Inf(1)
	for _, res := range v.Resources {
		if !res.Exists {
			continue
		}
		if d := dist(me.X, me.Y, res.X, res.Y); d <= reach && d < bestD {
			best, bestD = res.ID, d
		}
	}
	if best != "" {
		return action{kind: actAttack, target: best}
	}

	if !b.hasGoal || dist(me.X, me.Y, b.goalX, b.goalY) < 16 {
		span := b.params.SpawnRadius
		if span <= 0 {
			span = 256
		}
		b.goalX = b.params.SpawnX + (b.rng.Float64()*2-1)*span
		b.goalY = b.params.SpawnY + (b.rng.Float64()*2-1)*span
		b.hasGoal = true
	}
	step := 32.0
	d := dist(me.X, me.Y, b.goalX, b.goalY)
	if d == 0 {
		return action{}
	}
	if d < step {
		step = d
	}
	nx := me.X + (b.goalX-me.X)/d*step
	ny := me.Y + (b.goalY-me.Y)/d*step
	return action{kind: actMove, x: nx, y: ny}
}

func perform(r *client.Replica, a action) error {
	switch a.kind {
	case actMove:
		me := r.LocalID()
		x, y, _ := r.DisplayPosition(me)
		return r.SubmitIntent(a.x, a.y, math.Atan2(a.y-y, a.x-x), true)
	case actAttack:
		return r.Attack(a.target)
	case actPickup:
		return r.Pickup(a.target)
	case actEat:
		r.Consume(a.target)
	}
	return nil
}

func local(v client.View) (client.PlayerView, bool) {
	for _, p := range v.Players {
		if p.Local {
			return p, true
		}
	}
	return client.PlayerView{}, false
}

func dist(ax, ay, bx, by float64) float64 { return math.Hypot(ax-bx, ay-by) }
