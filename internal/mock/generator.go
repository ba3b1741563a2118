// Package mock feeds simulated sensor readings into the session store so the
// server and console can be exercised without real detection models.
package mock

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/proctorai/proctor/internal/proctor"
	"github.com/proctorai/proctor/internal/session"
)

// Behaviour patterns a simulated candidate can follow.
const (
	PatternSteady       = "steady"
	PatternWanderer     = "wanderer"
	PatternCollaborator = "collaborator"
	PatternChatter      = "chatter"
)

// frame is one tick's worth of sensor output for a candidate.
type frame struct {
	faceDetected bool
	faceCount    int
	pose         proctor.HeadPose
	gaze         proctor.EyeGaze
	audio        float64
}

type candidate struct {
	id      string
	pattern string
	sess    *proctor.Session
}

type MockGenerator struct {
	store      *session.Store
	interval   time.Duration
	rng        *rand.Rand
	candidates []*candidate
}

// NewGenerator returns a generator ticking at interval. A zero seed picks a
// time-based one.
func NewGenerator(store *session.Store, interval time.Duration, seed int64) *MockGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MockGenerator{
		store:    store,
		interval: interval,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Start creates one started session per pattern and begins ticking until ctx
// is cancelled.
func (g *MockGenerator) Start(ctx context.Context) error {
	if err := g.createSessions(); err != nil {
		return err
	}
	log.Printf("Mock sensors started: %d candidates every %s", len(g.candidates), g.interval)
	go g.run(ctx)
	return nil
}

func (g *MockGenerator) createSessions() error {
	for _, pattern := range []string{PatternSteady, PatternWanderer, PatternCollaborator, PatternChatter} {
		id := "mock-" + pattern
		sess, err := g.store.Create(id)
		if err != nil {
			return fmt.Errorf("create %s: %w", id, err)
		}
		sess.Start()
		g.candidates = append(g.candidates, &candidate{id: id, pattern: pattern, sess: sess})
	}
	return nil
}

func (g *MockGenerator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			g.step(tick)
		}
	}
}

func (g *MockGenerator) step(tick int) {
	for _, c := range g.candidates {
		f := g.frameFor(c.pattern, tick)
		c.sess.SetFaceDetected(f.faceDetected)
		c.sess.SetFaceCount(f.faceCount)
		c.sess.SetHeadPose(f.pose)
		c.sess.SetEyeGaze(f.gaze)
		c.sess.SetAudioLevel(f.audio)
	}
}

func (g *MockGenerator) frameFor(pattern string, tick int) frame {
	f := frame{
		faceDetected: true,
		faceCount:    1,
		pose:         proctor.PoseCenter,
		gaze:         proctor.GazeCenter,
		audio:        float64(2 + g.rng.Intn(8)),
	}

	switch pattern {
	case PatternSteady:
		// An occasional glance, never long enough to count.
		if tick%15 == 7 {
			f.gaze = proctor.GazeLeft
		}
	case PatternWanderer:
		// Looks left for four seconds of every ten at the default tick.
		if phase := tick % 20; phase >= 8 && phase < 16 {
			f.pose = proctor.PoseLeft
			f.gaze = proctor.GazeLeft
		}
	case PatternCollaborator:
		switch phase := tick % 30; {
		case phase >= 10 && phase < 14:
			f.faceCount = 2
		case phase >= 20 && phase < 22:
			f.faceDetected = false
			f.faceCount = 0
		}
	case PatternChatter:
		if phase := tick % 20; phase >= 4 && phase < 12 {
			f.audio = float64(40 + g.rng.Intn(30))
		}
	}
	return f
}
