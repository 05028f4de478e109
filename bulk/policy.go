package bulk

import (
	"math/rand"
	"sync"
	"time"

	"github.com/opusguard/rosterops/config"
)

// FaultPolicy decides failure injection and pacing for a run. The runner
// consults it once per unit; injecting a policy makes runs deterministic
// in tests.
type FaultPolicy interface {
	// PickFailure decides whether the unit fails and at which step.
	PickFailure(unitID string) (step Step, message string, failed bool)
	// UnitLatency is the pause before a unit starts.
	UnitLatency(unitID string) time.Duration
	// StepLatency is the pause between steps within a unit.
	StepLatency(unitID string) time.Duration
	// RetrySucceeds decides whether an app-sync retry for the unit
	// resolves the failure.
	RetrySucceeds(unitID string) bool
}

// FailureMode is one entry of a failure catalog.
type FailureMode struct {
	Step    Step
	Message string
}

// wizardFailures are the failure modes injected into wizard runs. Weighted
// by repetition: payroll and app-sync problems dominate.
var wizardFailures = []FailureMode{
	{StepPayrollSync, "Payroll provider rejected the change: pay period is locked for the current cycle"},
	{StepPayrollSync, "Payroll sync timed out waiting for provider acknowledgement"},
	{StepBenefitsSync, "Benefits carrier reported a plan eligibility mismatch"},
	{StepDeviceMgmt, "Device management rejected the update: device not enrolled"},
	{StepThirdParty, "Okta group sync failed: rate limited by identity provider"},
	{StepThirdParty, "Downstream app webhook returned 502"},
	{StepThirdParty, "Calendar integration rejected the profile update"},
}

// csvFailures are the failure modes injected into CSV import runs.
var csvFailures = []FailureMode{
	{StepSystemOfRecord, "HR system rejected the row: record version conflict"},
	{StepPayrollSync, "Payroll provider rejected the imported compensation change"},
	{StepPayrollSync, "Payroll sync timed out waiting for provider acknowledgement"},
	{StepBenefitsSync, "Benefits sync failed: dependent coverage requires review"},
	{StepDeviceMgmt, "IT provisioning queue rejected the update"},
	{StepThirdParty, "App integration sync failed: stale directory mapping"},
	{StepThirdParty, "Okta group sync failed: rate limited by identity provider"},
}

// RandomPolicy injects failures at a fixed rate with randomized latency.
// Safe for concurrent use.
type RandomPolicy struct {
	mu        sync.Mutex
	rng       *rand.Rand
	rate      float64
	retryRate float64
	catalog   []FailureMode
	unitMin   time.Duration
	unitMax   time.Duration
	stepMin   time.Duration
	stepMax   time.Duration
}

// NewRandomPolicy builds the default policy for a job kind from runner
// configuration. seed pins the sequence; pass time-derived seeds in
// production wiring.
func NewRandomPolicy(cfg config.RunnerConfig, kind JobKind, seed int64) *RandomPolicy {
	rate := cfg.WizardFailureRate
	catalog := wizardFailures
	if kind == KindCSV {
		rate = cfg.CSVFailureRate
		catalog = csvFailures
	}
	return &RandomPolicy{
		rng:       rand.New(rand.NewSource(seed)),
		rate:      rate,
		retryRate: cfg.RetrySuccessRate,
		catalog:   catalog,
		unitMin:   time.Duration(cfg.UnitLatencyMinMs) * time.Millisecond,
		unitMax:   time.Duration(cfg.UnitLatencyMaxMs) * time.Millisecond,
		stepMin:   time.Duration(cfg.StepLatencyMinMs) * time.Millisecond,
		stepMax:   time.Duration(cfg.StepLatencyMaxMs) * time.Millisecond,
	}
}

func (p *RandomPolicy) PickFailure(string) (Step, string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.catalog) == 0 || p.rng.Float64() >= p.rate {
		return "", "", false
	}
	mode := p.catalog[p.rng.Intn(len(p.catalog))]
	return mode.Step, mode.Message, true
}

func (p *RandomPolicy) UnitLatency(string) time.Duration {
	return p.between(p.unitMin, p.unitMax)
}

func (p *RandomPolicy) StepLatency(string) time.Duration {
	return p.between(p.stepMin, p.stepMax)
}

func (p *RandomPolicy) RetrySucceeds(string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() < p.retryRate
}

func (p *RandomPolicy) between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return min + time.Duration(p.rng.Int63n(int64(max-min)))
}

// ScriptedPolicy fails exactly the configured units with zero latency.
// Intended for tests and demos.
type ScriptedPolicy struct {
	// Failures maps unit id to the step that should fail.
	Failures map[string]Step
	// Messages optionally maps unit id to the failure message.
	Messages map[string]string
	// RetryFails lists units whose app-sync retries keep failing.
	RetryFails map[string]bool
}

func (p *ScriptedPolicy) PickFailure(unitID string) (Step, string, bool) {
	step, ok := p.Failures[unitID]
	if !ok {
		return "", "", false
	}
	msg := p.Messages[unitID]
	if msg == "" {
		msg = "Injected failure"
	}
	return step, msg, true
}

func (p *ScriptedPolicy) UnitLatency(string) time.Duration { return 0 }
func (p *ScriptedPolicy) StepLatency(string) time.Duration { return 0 }

func (p *ScriptedPolicy) RetrySucceeds(unitID string) bool {
	return !p.RetryFails[unitID]
}
