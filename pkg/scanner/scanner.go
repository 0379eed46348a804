// Package scanner implements the concurrent API scan engine: endpoint
// discovery, the bounded probe worker pool, result merging, checkpointing,
// and the scan-level TLS/CORS/rate-limit checks.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/murmur3"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"

	"github.com/apiward/apiward/internal/config"
	"github.com/apiward/apiward/internal/core"
	"github.com/apiward/apiward/internal/httpclient"
	"github.com/apiward/apiward/internal/logger"
	"github.com/apiward/apiward/internal/telemetry"
	"github.com/apiward/apiward/pkg/checkpoint"
	"github.com/apiward/apiward/pkg/compliance"
	"github.com/apiward/apiward/pkg/ratecontrol"
	"github.com/apiward/apiward/pkg/types"
)

// Scanner orchestrates one scan at a time: it discovers endpoints,
// partitions them into batches, drives the worker pool, and assembles the
// final report. Stop requests cooperative cancellation; in-flight endpoint
// probes finish, no new batch starts, and no further checkpoint is written.
type Scanner struct {
	cfg         config.ScannerConfig
	rateCfg     config.RateLimitConfig
	log         *logger.Logger
	telemetry   core.Telemetry
	checkpoints *checkpoint.Manager
	detectors   *Detectors

	running atomic.Bool
}

func New(cfg *config.Config, log *logger.Logger, tel core.Telemetry, checkpoints *checkpoint.Manager) *Scanner {
	if tel == nil {
		tel = telemetry.NewNoop()
	}
	return &Scanner{
		cfg:         cfg.Scanner,
		rateCfg:     cfg.RateLimit,
		log:         log.WithComponent("scanner"),
		telemetry:   tel,
		checkpoints: checkpoints,
		detectors:   NewDetectors(),
	}
}

// Stop flips the running flag. Checked before each batch submission and
// each checkpoint save.
func (s *Scanner) Stop() {
	s.running.Store(false)
}

// scanSession holds everything mutated while a scan runs. All result
// mutation happens inside merge, under the one session mutex; the progress
// callback is always invoked after the mutex is released.
type scanSession struct {
	mu        sync.Mutex
	result    *types.ScanResult
	endpoints []string
	completed []string
}

func (ss *scanSession) merge(res *ProbeResult, endpoint string) int {
	for i := range res.Findings {
		res.Findings[i].ScanID = ss.result.ScanID
	}
	for i := range res.AIFindings {
		res.AIFindings[i].ScanID = ss.result.ScanID
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	ss.result.EndpointsData = append(ss.result.EndpointsData, res.Record)
	ss.result.Findings = append(ss.result.Findings, res.Findings...)
	ss.result.Vulnerabilities = append(ss.result.Vulnerabilities, res.Vulnerabilities...)
	ss.result.PIIExposures = append(ss.result.PIIExposures, res.PIIExposures...)
	ss.result.AuthIssues = append(ss.result.AuthIssues, res.AuthIssues...)
	ss.result.AIActFindings = append(ss.result.AIActFindings, res.AIFindings...)
	ss.completed = append(ss.completed, endpoint)
	return len(ss.completed)
}

func (ss *scanSession) snapshot() *checkpoint.State {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	return &checkpoint.State{
		ScanID:          ss.result.ScanID,
		BaseURL:         ss.result.BaseURL,
		Endpoints:       ss.endpoints,
		Completed:       append([]string(nil), ss.completed...),
		EndpointsData:   append([]types.EndpointRecord(nil), ss.result.EndpointsData...),
		Findings:        append([]types.Finding(nil), ss.result.Findings...),
		Vulnerabilities: append([]types.Vulnerability(nil), ss.result.Vulnerabilities...),
		PIIExposures:    append([]types.PIIExposure(nil), ss.result.PIIExposures...),
		AuthIssues:      append([]types.AuthIssue(nil), ss.result.AuthIssues...),
		AIFindings:      append([]types.Finding(nil), ss.result.AIActFindings...),
	}
}

// RunScan executes a full scan of target. The caller always receives a
// well-formed ScanResult except for the two fatal cases: an unusable base
// URL or a malformed resume state.
func (s *Scanner) RunScan(ctx context.Context, target string, opts types.ScanOptions) (*types.ScanResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, errors.New("a scan is already running")
	}
	defer s.running.Store(false)

	opts = s.applyDefaults(opts)

	base, err := normalizeTarget(target)
	if err != nil {
		return nil, fmt.Errorf("unusable base URL %q: %w", target, err)
	}

	start := time.Now().UTC()

	var prior *checkpoint.State
	if opts.ResumeID != "" {
		prior, err = s.loadResumeState(ctx, opts.ResumeID)
		if err != nil {
			return nil, err
		}
		if prior != nil && prior.BaseURL != "" && prior.BaseURL != base.String() {
			s.log.Warnw("Resume target differs from checkpoint, using checkpoint base URL",
				"target", base.String(),
				"checkpoint_base", prior.BaseURL,
			)
			base, err = normalizeTarget(prior.BaseURL)
			if err != nil {
				return nil, fmt.Errorf("malformed base URL in checkpoint %s: %w", opts.ResumeID, err)
			}
		}
	}

	scanID := opts.ResumeID
	if scanID == "" {
		scanID = newScanID(base.String(), start)
	}

	log := s.log.WithScanID(scanID).WithTarget(base.String())
	result := types.NewScanResult(scanID, base.String(), baseDomain(base), start)

	ctx, span := log.StartOperation(ctx, "scanner.run",
		"base_url", base.String(),
		"resumed", prior != nil,
	)

	utilityClient := httpclient.NewDiscoveryClient(opts.Timeout, opts.VerifyTLS)

	var endpoints []string
	if prior != nil {
		endpoints = prior.Endpoints
		restoreState(result, prior)
	} else {
		var source string
		endpoints, source, err = NewDiscoverer(utilityClient, log, s.cfg.UserAgent).Resolve(ctx, base, opts)
		if err != nil {
			log.FinishOperation(ctx, span, "scanner.run", start, err)
			return nil, err
		}
		if len(endpoints) > opts.MaxEndpoints {
			log.Infow("Truncating endpoint list",
				"discovered", len(endpoints),
				"max_endpoints", opts.MaxEndpoints,
			)
			endpoints = endpoints[:opts.MaxEndpoints]
		}
		log.Infow("Endpoints resolved", "count", len(endpoints), "source", source)
	}

	session := &scanSession{
		result:    result,
		endpoints: endpoints,
	}

	toScan := endpoints
	if prior != nil {
		session.completed = append([]string(nil), prior.Completed...)
		toScan = checkpoint.Pending(prior.Endpoints, prior.Completed)
		log.Infow("Resuming scan",
			"endpoints", len(prior.Endpoints),
			"skipped", len(prior.Endpoints)-len(toScan),
			"pending", len(toScan),
		)
	}

	rateCfg := s.rateCfg
	if opts.Delay > 0 {
		rateCfg.BaseDelay = opts.Delay
	}
	rate := ratecontrol.New(rateCfg)

	clientCfg := httpclient.ClientConfig{
		Timeout:         opts.Timeout,
		VerifyTLS:       opts.VerifyTLS,
		FollowRedirects: opts.FollowRedirects,
		MaxRedirects:    5,
	}

	// Each worker owns one prober, and with it one HTTP client. The pool
	// channel is both the worker semaphore and the prober hand-off.
	proberPool := make(chan *Prober, opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		proberPool <- NewProber(httpclient.New(clientCfg), rate, s.detectors, log, opts, s.cfg.UserAgent)
	}

	s.runBatches(ctx, log, session, toScan, proberPool, opts)

	if s.running.Load() && ctx.Err() == nil {
		checker := NewChecker(utilityClient, log, opts.Timeout, s.cfg.UserAgent)

		sslInfo, sslFindings := checker.CheckTLS(ctx, base)
		result.SSLInfo = sslInfo
		for i := range sslFindings {
			sslFindings[i].ScanID = scanID
		}
		result.Findings = append(result.Findings, sslFindings...)

		result.CORSAnalysis = checker.CheckCORS(ctx, base.String())
		result.RateLimiting = checker.CheckRateLimit(ctx, base.String())
	}

	// Throttling observed during probing counts even when the burst check
	// saw none.
	if rate.Snapshot().Throttled {
		result.RateLimiting.Checked = true
		result.RateLimiting.Enabled = true
	}

	result.CompletionTime = time.Now().UTC()
	result.DurationSeconds = result.CompletionTime.Sub(result.ScanTime).Seconds()
	result.EndpointsScanned = len(result.EndpointsData)
	assembleStats(result, len(endpoints))

	compliance.Aggregate(result)

	s.saveCheckpoint(ctx, log, session)

	s.telemetry.RecordScan(result.DurationSeconds, true)
	for _, f := range result.Findings {
		s.telemetry.RecordFinding(f.Severity)
	}

	log.FinishOperation(ctx, span, "scanner.run", start, nil,
		"endpoints_scanned", result.EndpointsScanned,
		"total_findings", result.Stats.TotalFindings,
		"ai_act_status", result.AIActStatus,
		"uavg_status", result.NetherlandsUAVGStatus,
	)

	return result, nil
}

// runBatches walks the endpoint list in fixed-size batches. Batches run
// sequentially; endpoints within a batch run on the bounded worker pool.
func (s *Scanner) runBatches(ctx context.Context, log *logger.Logger, session *scanSession, toScan []string, proberPool chan *Prober, opts types.ScanOptions) {
	total := len(session.endpoints)

	for batchStart := 0; batchStart < len(toScan); batchStart += opts.BatchSize {
		if !s.running.Load() || ctx.Err() != nil {
			log.Infow("Scan stopped before batch submission",
				"completed", len(session.completed),
				"remaining", len(toScan)-batchStart,
			)
			return
		}

		batchEnd := batchStart + opts.BatchSize
		if batchEnd > len(toScan) {
			batchEnd = len(toScan)
		}
		batch := toScan[batchStart:batchEnd]

		g, batchCtx := errgroup.WithContext(ctx)
		for _, endpoint := range batch {
			endpoint := endpoint
			g.Go(func() error {
				prober := <-proberPool
				s.telemetry.RecordWorkerDelta(1)
				defer func() {
					s.telemetry.RecordWorkerDelta(-1)
					proberPool <- prober
				}()

				res := prober.Probe(batchCtx, endpoint)

				n := session.merge(res, endpoint)

				if opts.Progress != nil {
					opts.Progress(n, total, fmt.Sprintf("Scanned %s", endpoint))
				}
				log.LogScanProgress(batchCtx, session.result.ScanID, n, total, endpoint)

				if s.cfg.CheckpointEvery > 0 && n%s.cfg.CheckpointEvery == 0 {
					s.saveCheckpoint(batchCtx, log, session)
				}
				return nil
			})
		}
		// Workers convert their failures into findings and never fail the
		// group.
		_ = g.Wait()

		if batchEnd < len(toScan) {
			select {
			case <-time.After(s.cfg.BatchPause):
			case <-ctx.Done():
				return
			}
		}
	}
}

// saveCheckpoint persists the session best-effort. Failures are logged and
// never interrupt the scan.
func (s *Scanner) saveCheckpoint(ctx context.Context, log *logger.Logger, session *scanSession) {
	if s.checkpoints == nil || !s.running.Load() {
		return
	}

	state := session.snapshot()
	if err := s.checkpoints.Save(ctx, state); err != nil {
		log.Warnw("Checkpoint save failed",
			"completed", len(state.Completed),
			"error", err.Error(),
		)
		return
	}
	log.Debugw("Checkpoint saved", "completed", len(state.Completed))
}

// loadResumeState resolves a resume ID. A missing checkpoint starts a fresh
// scan; a corrupt one is fatal.
func (s *Scanner) loadResumeState(ctx context.Context, resumeID string) (*checkpoint.State, error) {
	if s.checkpoints == nil {
		return nil, errors.New("resume requested but no checkpoint store is configured")
	}

	state, err := s.checkpoints.Load(ctx, resumeID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		s.log.Infow("No checkpoint found, starting fresh", "resume_id", resumeID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load resume state %s: %w", resumeID, err)
	}
	return state, nil
}

func (s *Scanner) applyDefaults(opts types.ScanOptions) types.ScanOptions {
	if opts.MaxEndpoints <= 0 {
		opts.MaxEndpoints = s.cfg.MaxEndpoints
	}
	if opts.Timeout <= 0 {
		opts.Timeout = s.cfg.Timeout
	}
	if opts.Delay <= 0 {
		opts.Delay = s.cfg.Delay
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = s.cfg.BatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = s.cfg.Workers
	}
	if opts.Region == "" {
		opts.Region = s.cfg.Region
	}
	if opts.CallerScope == "" {
		opts.CallerScope = checkpoint.DefaultScope
	}
	return opts
}

func restoreState(result *types.ScanResult, state *checkpoint.State) {
	result.EndpointsData = append(result.EndpointsData, state.EndpointsData...)
	result.Findings = append(result.Findings, state.Findings...)
	result.Vulnerabilities = append(result.Vulnerabilities, state.Vulnerabilities...)
	result.PIIExposures = append(result.PIIExposures, state.PIIExposures...)
	result.AuthIssues = append(result.AuthIssues, state.AuthIssues...)
	result.AIActFindings = append(result.AIActFindings, state.AIFindings...)
}

func assembleStats(result *types.ScanResult, totalEndpoints int) {
	stats := types.Stats{TotalEndpoints: totalEndpoints}

	for _, rec := range result.EndpointsData {
		if len(rec.Responses) > 0 {
			stats.SuccessfulScans++
		}
	}

	stats.TotalFindings = len(result.Findings)
	for _, f := range result.Findings {
		switch f.Severity {
		case types.SeverityCritical:
			stats.CriticalFindings++
		case types.SeverityHigh:
			stats.HighFindings++
		case types.SeverityMedium:
			stats.MediumFindings++
		case types.SeverityLow:
			stats.LowFindings++
		}
	}

	result.Stats = stats
}

// normalizeTarget parses a caller-supplied target, defaulting the scheme to
// https. The only fatal input error in the whole engine starts here.
func normalizeTarget(target string) (*url.URL, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New("empty target")
	}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	u.Fragment = ""
	return u, nil
}

// baseDomain reduces a host to its registrable domain. Hosts without a
// public suffix (IPs, localhost, internal names) are reported as-is.
func baseDomain(u *url.URL) string {
	host := u.Hostname()
	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return domain
	}
	return host
}

// newScanID builds a stable-prefix scan identifier: the hash pins the
// target and start time, the suffix disambiguates identical reruns.
func newScanID(target string, start time.Time) string {
	h := murmur3.Sum32([]byte(fmt.Sprintf("%s@%d", target, start.Unix())))
	return fmt.Sprintf("api-%08x-%s", h, uuid.NewString()[:8])
}
