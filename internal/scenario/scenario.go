// Package scenario runs the control loop: each tick it reads the signal
// sources, classifies the feature vector, smooths the decision, drives the
// plant and sends the resulting joint angles to the sink. Trainer commands
// are executed on the same goroutine between ticks.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/limbcontrol/internal/classifier"
	"github.com/banshee-data/limbcontrol/internal/command"
	"github.com/banshee-data/limbcontrol/internal/config"
	"github.com/banshee-data/limbcontrol/internal/decision"
	"github.com/banshee-data/limbcontrol/internal/features"
	"github.com/banshee-data/limbcontrol/internal/monitoring"
	"github.com/banshee-data/limbcontrol/internal/motion"
	"github.com/banshee-data/limbcontrol/internal/plant"
	"github.com/banshee-data/limbcontrol/internal/signal"
	"github.com/banshee-data/limbcontrol/internal/sink"
	"github.com/banshee-data/limbcontrol/internal/timeutil"
	"github.com/banshee-data/limbcontrol/internal/training"
)

var logs = monitoring.NewStreams("scenario")

// SetLogWriters configures the scenario log streams.
func SetLogWriters(w monitoring.LogWriters) { logs.SetLogWriters(w) }

// Statuses reported in addition to the classifier statuses.
const (
	StatusPaused     = "PAUSED"
	StatusHandPaused = "HAND PAUSED"
)

var (
	ErrNoSources   = errors.New("scenario: no signal sources")
	ErrNoPersister = errors.New("scenario: no training persister configured")
	ErrNoBackuper  = errors.New("scenario: no backup target configured")
)

// Backuper copies persisted training data to a timestamped backup and
// returns its location.
type Backuper interface {
	Backup(ctx context.Context) (string, error)
}

// Options wires the scenario's collaborators. Sources, Store, Classifier and
// Plant are required; the rest may be nil.
type Options struct {
	Config     *config.ControlConfig
	Sources    []signal.Source
	Extractor  *features.Extractor
	Store      *training.Store
	Classifier *classifier.Classifier
	Plant      *plant.Plant
	Sink       sink.Sink
	Persister  training.Persister
	Backuper   Backuper
	Clock      timeutil.Clock
	Metrics    *monitoring.Metrics
}

// Status is the trainer-facing summary of the loop. The JSON names follow
// the message ids the trainer page listens for.
type Status struct {
	Status         string   `json:"strStatus"`
	Decision       string   `json:"strOutputMotion"`
	TrainingMotion string   `json:"strTrainingMotion"`
	AddingData     bool     `json:"addData"`
	ClassNames     []string `json:"classNames"`
	Totals         []int    `json:"totals"`
	PausedAll      bool     `json:"pausedAll"`
	PausedHand     bool     `json:"pausedHand"`
	Gain           float64  `json:"gain"`
	HandGain       float64  `json:"handGain"`
	Precision      bool     `json:"precisionMode"`
	Ticks          uint64   `json:"ticks"`
}

func (s Status) clone() Status {
	s.ClassNames = append([]string(nil), s.ClassNames...)
	s.Totals = append([]int(nil), s.Totals...)
	return s
}

// Scenario owns the per-tick state of the control pipeline. UpdateTick and
// HandleCommand must be called from one goroutine; Run does that. Status may
// be called from anywhere.
type Scenario struct {
	cfg        *config.ControlConfig
	sources    []signal.Source
	extractor  *features.Extractor
	store      *training.Store
	classifier *classifier.Classifier
	plant      *plant.Plant
	sink       sink.Sink
	persister  training.Persister
	backuper   Backuper
	clock      timeutil.Clock
	metrics    *monitoring.Metrics

	motions  *motion.Map
	smoother *decision.Smoother

	// Loop-goroutine state.
	addData       bool
	trainingID    int
	pauseAll      bool
	pauseHand     bool
	gain          float64
	handGain      float64
	precision     bool
	lastDecision  string
	lastStatus    string
	sinkFailing   bool
	ticks         uint64
	commands      chan command.Command
	statusChanged func()

	mu     sync.RWMutex
	status Status
}

// NewExtractor builds the feature extractor described by cfg. The channel
// shift applies to the first source.
func NewExtractor(cfg *config.ControlConfig) (*features.Extractor, error) {
	fs, err := features.NewSet(cfg.GetFeatures(), features.Params{
		SampleRate:    cfg.GetSampleRate(),
		ZCThreshold:   cfg.GetZCThreshold(),
		SSCThreshold:  cfg.GetSSCThreshold(),
		WAMPThreshold: cfg.GetWAMPThreshold(),
	})
	if err != nil {
		return nil, err
	}
	e := features.NewExtractor(fs...)
	e.SetOrientation(0, cfg.GetChannelShift())
	return e, nil
}

// New validates opts and returns a scenario at rest with unit gains.
func New(opts Options) (*Scenario, error) {
	if len(opts.Sources) == 0 {
		return nil, ErrNoSources
	}
	if opts.Store == nil || opts.Classifier == nil || opts.Plant == nil {
		return nil, fmt.Errorf("scenario: store, classifier and plant are required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.EmptyControlConfig()
	}
	ext := opts.Extractor
	if ext == nil {
		var err error
		if ext, err = NewExtractor(cfg); err != nil {
			return nil, err
		}
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	names := opts.Store.ClassNames()
	motions := motion.NewMap(names)
	restID := motions.ID(motion.NoMovement)
	if restID < 0 {
		logs.Opsf("catalog has no %q class; decisions will not be forced to rest", motion.NoMovement)
	}

	s := &Scenario{
		cfg:        cfg,
		sources:    append([]signal.Source(nil), opts.Sources...),
		extractor:  ext,
		store:      opts.Store,
		classifier: opts.Classifier,
		plant:      opts.Plant,
		sink:       opts.Sink,
		persister:  opts.Persister,
		backuper:   opts.Backuper,
		clock:      clock,
		metrics:    opts.Metrics,
		motions:    motions,
		smoother:   decision.NewSmoother(cfg.GetVoteBufferSize(), restID),
		gain:       1,
		handGain:   1,
		trainingID: max(restID, 0),
		lastStatus: classifier.Untrained.String(),
		commands:   make(chan command.Command, 32),
	}
	s.lastDecision = motions.Name(restID)
	s.publishStatus()
	return s, nil
}

// Status returns a copy of the latest status.
func (s *Scenario) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.clone()
}

// OnStatusChange registers f to be called, on the loop goroutine, after a
// command changes trainer-visible state. Set it before Run.
func (s *Scenario) OnStatusChange(f func()) { s.statusChanged = f }

func (s *Scenario) publishStatus() {
	st := Status{
		Status:         s.lastStatus,
		Decision:       s.lastDecision,
		TrainingMotion: s.motions.Name(s.trainingID),
		AddingData:     s.addData,
		ClassNames:     s.store.ClassNames(),
		Totals:         s.store.Totals(),
		PausedAll:      s.pauseAll,
		PausedHand:     s.pauseHand,
		Gain:           s.gain,
		HandGain:       s.handGain,
		Precision:      s.precision,
		Ticks:          s.ticks,
	}
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}
