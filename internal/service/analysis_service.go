package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"partsight/internal/domain"
	"partsight/internal/models"
	"partsight/internal/repository"
	"partsight/pkg/analyzer"
	"partsight/pkg/artifact"

	"github.com/google/uuid"
)

// ErrInsufficientCredits is re-exported so handlers depend on the service
// layer only.
var ErrInsufficientCredits = repository.ErrInsufficientCredits

// ErrNotOwner hides other users' jobs.
var ErrNotOwner = errors.New("job does not belong to user")

// AnalyzerClient is the slice of the analyzer client the orchestrator
// needs; tests substitute a fake.
type AnalyzerClient interface {
	Health(ctx context.Context) error
	Analyze(ctx context.Context, r analyzer.Request) (*analyzer.Result, error)
}

// AnalysisService orchestrates the paid analysis lifecycle: reserve a
// credit, persist the input artifact, run the remote analysis, then either
// consume the reservation on success or refund it on failure.
type AnalysisService struct {
	jobs      *repository.AnalysisJobRepository
	credits   *CreditService
	subs      *repository.SubscriptionRepository
	client    AnalyzerClient
	artifacts artifact.Store

	// Async dispatches runs on a goroutine. Tests set it false to run
	// inline.
	Async bool
}

func NewAnalysisService(
	jobs *repository.AnalysisJobRepository,
	credits *CreditService,
	subs *repository.SubscriptionRepository,
	client AnalyzerClient,
	artifacts artifact.Store,
) *AnalysisService {
	return &AnalysisService{
		jobs:      jobs,
		credits:   credits,
		subs:      subs,
		client:    client,
		artifacts: artifacts,
		Async:     true,
	}
}

type SubmitInput struct {
	UserID   uint
	Email    string
	Image    []byte
	Filename string
	Keywords []string
	Deep     bool
}

// Submit reserves a credit, persists the job and artifact, and dispatches
// the analysis. The reservation happens before any job row exists, so an
// insufficient balance leaves no trace. If the artifact store fails the
// reservation is refunded and no job is created either.
func (s *AnalysisService) Submit(ctx context.Context, in SubmitInput) (*models.AnalysisJob, error) {
	_, unlimited, err := s.credits.Reserve(in.UserID)
	if err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	url, err := s.artifacts.Put(ctx, jobID, in.Image)
	if err != nil {
		if !unlimited {
			if rerr := s.credits.Refund(in.UserID, domain.ReasonAnalysisRefund); rerr != nil {
				log.Printf("[analysis] refund after artifact store failure failed: user=%d err=%v", in.UserID, rerr)
			}
		}
		return nil, err
	}

	job := &models.AnalysisJob{
		ID:             jobID,
		UserID:         in.UserID,
		Status:         domain.JobStatusPending,
		CreditReserved: !unlimited,
		ArtifactURL:    url,
		Filename:       in.Filename,
		Keywords:       strings.Join(in.Keywords, ","),
		Deep:           in.Deep,
	}
	if err := s.jobs.Create(job); err != nil {
		if !unlimited {
			if rerr := s.credits.Refund(in.UserID, domain.ReasonAnalysisRefund); rerr != nil {
				log.Printf("[analysis] refund after job create failure failed: user=%d err=%v", in.UserID, rerr)
			}
		}
		return nil, err
	}

	s.dispatch(job.ID, in.Email)
	return job, nil
}

func (s *AnalysisService) dispatch(jobID, email string) {
	if s.Async {
		go s.run(jobID, email)
		return
	}
	s.run(jobID, email)
}

// run drives one attempt. The health probe fast-fails before the artifact
// is even fetched; any failure refunds the reservation exactly once,
// guarded by the job's CreditReserved flag.
func (s *AnalysisService) run(jobID, email string) {
	ctx := context.Background()
	job, err := s.jobs.GetByID(jobID)
	if err != nil {
		log.Printf("[analysis] job %s vanished before run: %v", jobID, err)
		return
	}
	job.Status = domain.JobStatusProcessing
	if err := s.jobs.Update(job); err != nil {
		log.Printf("[analysis] job %s: mark processing failed: %v", jobID, err)
		return
	}

	if err := s.client.Health(ctx); err != nil {
		s.fail(job, analyzer.Classify(err))
		return
	}

	image, err := s.artifacts.Fetch(ctx, job.ArtifactURL)
	if err != nil {
		s.fail(job, &analyzer.Error{Kind: analyzer.KindUnavailable, Message: "artifact fetch: " + err.Error()})
		return
	}

	var keywords []string
	if job.Keywords != "" {
		keywords = strings.Split(job.Keywords, ",")
	}
	res, err := s.client.Analyze(ctx, analyzer.Request{
		Image:      image,
		Filename:   job.Filename,
		UserEmail:  email,
		AnalysisID: job.ID,
		Keywords:   keywords,
		Deep:       job.Deep,
	})
	if err != nil {
		s.fail(job, analyzer.Classify(err))
		return
	}

	if err := s.jobs.MarkCompleted(job.ID, res.Confidence, res.ProcessingMS); err != nil {
		log.Printf("[analysis] job %s: mark completed failed: %v", job.ID, err)
		return
	}
	if err := s.subs.IncrementUsage(job.UserID); err != nil {
		log.Printf("[analysis] job %s: usage increment failed: %v", job.ID, err)
	}
	log.Printf("[analysis] job %s completed: confidence=%.3f", job.ID, res.Confidence)
}

// fail refunds the reservation before the failure outcome is written, so a
// crash between the two can only leave a refund plus a still-reserved
// flag, never a lost credit.
func (s *AnalysisService) fail(job *models.AnalysisJob, aerr *analyzer.Error) {
	if job.CreditReserved {
		if err := s.credits.Refund(job.UserID, domain.ReasonAnalysisRefund); err != nil {
			log.Printf("[analysis] job %s: refund failed: %v", job.ID, err)
		}
	}
	if err := s.jobs.MarkFailed(job.ID, aerr.Message, aerr.Kind, aerr.Retryable()); err != nil {
		log.Printf("[analysis] job %s: mark failed failed: %v", job.ID, err)
	}
	log.Printf("[analysis] job %s failed: kind=%s retryable=%v", job.ID, aerr.Kind, aerr.Retryable())
}

// Retry re-attempts a failed job: a fresh reservation is taken (the
// original was refunded on failure), the attempt counter advances, and the
// job re-enters the pending state. An insufficient balance still consumes
// the attempt: the counter advances and the job stays failed, so an owner
// who never tops up cannot keep the job in the sweep set forever.
func (s *AnalysisService) Retry(job *models.AnalysisJob, email string) error {
	if job.Status != domain.JobStatusFailed {
		return errors.New("job is not in a retryable state")
	}
	_, unlimited, err := s.credits.Reserve(job.UserID)
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			job.RetryCount++
			if uerr := s.jobs.Update(job); uerr != nil {
				log.Printf("[analysis] job %s: retry count update failed: %v", job.ID, uerr)
			}
		}
		return err
	}
	job.Status = domain.JobStatusPending
	job.RetryCount++
	job.CreditReserved = !unlimited
	job.ErrorMessage = ""
	job.ErrorKind = ""
	job.RetrySuggested = false
	if err := s.jobs.Update(job); err != nil {
		if !unlimited {
			if rerr := s.credits.Refund(job.UserID, domain.ReasonAnalysisRefund); rerr != nil {
				log.Printf("[analysis] refund after retry update failure failed: user=%d err=%v", job.UserID, rerr)
			}
		}
		return err
	}
	s.dispatch(job.ID, email)
	return nil
}

func (s *AnalysisService) GetJob(userID uint, id string) (*models.AnalysisJob, error) {
	job, err := s.jobs.GetByID(id)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrNotOwner
	}
	return job, nil
}

func (s *AnalysisService) ListJobs(userID uint, limit, offset int) ([]models.AnalysisJob, error) {
	return s.jobs.ListByUser(userID, limit, offset)
}
