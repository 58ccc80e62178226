package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/analysis"
	"github.com/stemsi/exstem-cbt/internal/apperror"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"golang.org/x/sync/errgroup"
)

// ItemAnalysisReport is the per-question statistics of an exam.
type ItemAnalysisReport struct {
	Exam         model.ExamConfig        `json:"exam"`
	Participants int                     `json:"participants"`
	Items        []analysis.ItemAnalysis `json:"items"`
}

// DistributionReport is the score histogram of an exam.
type DistributionReport struct {
	Exam    model.ExamConfig `json:"exam"`
	Summary analysis.Summary `json:"summary"`
	Bins    []analysis.Bin   `json:"bins"`
}

// ReportService builds post-exam analytics and manages participants.
type ReportService struct {
	examRepo    *repository.ExamRepository
	attemptRepo *repository.AttemptRepository
	progress    *repository.ProgressStore
	data        *ExamDataService
	sessions    *ExamSessionService
	log         zerolog.Logger
}

// NewReportService creates a new ReportService.
func NewReportService(
	examRepo *repository.ExamRepository,
	attemptRepo *repository.AttemptRepository,
	progress *repository.ProgressStore,
	data *ExamDataService,
	sessions *ExamSessionService,
	log zerolog.Logger,
) *ReportService {
	return &ReportService{
		examRepo:    examRepo,
		attemptRepo: attemptRepo,
		progress:    progress,
		data:        data,
		sessions:    sessions,
		log:         log.With().Str("component", "report_service").Logger(),
	}
}

// load fetches the exam, its questions and its results concurrently.
func (s *ReportService) load(ctx context.Context, examID uuid.UUID, withQuestions bool) (*model.ExamConfig, []model.Question, []model.Result, error) {
	var (
		exam      *model.ExamConfig
		questions []model.Question
		results   []model.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e, err := s.examRepo.GetByID(gctx, examID)
		if err != nil {
			return apperror.FromStore("get exam", err)
		}
		exam = e
		return nil
	})
	if withQuestions {
		g.Go(func() error {
			qs, err := s.data.FetchQuestions(gctx, examID)
			questions = qs
			return err
		})
	}
	g.Go(func() error {
		rs, err := s.data.FetchResults(gctx, examID)
		results = rs
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return exam, questions, results, nil
}

// GetExam returns the exam definition without its access token.
func (s *ReportService) GetExam(ctx context.Context, examID uuid.UUID) (*model.ExamConfig, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, apperror.FromStore("get exam", err)
	}
	pub := exam.Public()
	return &pub, nil
}

// ItemAnalysis computes difficulty, discrimination and distractor tallies
// for every question of the exam.
func (s *ReportService) ItemAnalysis(ctx context.Context, examID uuid.UUID) (*ItemAnalysisReport, error) {
	exam, questions, results, err := s.load(ctx, examID, true)
	if err != nil {
		return nil, err
	}
	return &ItemAnalysisReport{
		Exam:         exam.Public(),
		Participants: len(results),
		Items:        analysis.Analyze(questions, results),
	}, nil
}

// ScoreDistribution bins the exam's scores into ten ranges.
func (s *ReportService) ScoreDistribution(ctx context.Context, examID uuid.UUID) (*DistributionReport, error) {
	exam, _, results, err := s.load(ctx, examID, false)
	if err != nil {
		return nil, err
	}
	return &DistributionReport{
		Exam:    exam.Public(),
		Summary: analysis.Summarize(results),
		Bins:    analysis.Distribution(results),
	}, nil
}

// RankedResults lists the exam's results by score descending. Equal scores
// keep submission order and share no rank.
func (s *ReportService) RankedResults(ctx context.Context, examID uuid.UUID) ([]model.RankedResult, error) {
	if _, err := s.examRepo.GetByID(ctx, examID); err != nil {
		return nil, apperror.FromStore("get exam", err)
	}
	results, err := s.data.FetchResults(ctx, examID)
	if err != nil {
		return nil, err
	}

	ranked := analysis.Rank(results)
	out := make([]model.RankedResult, len(ranked))
	for i, r := range ranked {
		out[i] = model.RankedResult{Rank: i + 1, Result: r}
	}
	return out, nil
}

// ResetParticipant deletes a user's attempt, answers and result for the exam
// so they can take it again. A connected session is closed first.
func (s *ReportService) ResetParticipant(ctx context.Context, examID uuid.UUID, userID int) error {
	s.sessions.Evict(examID, userID)

	if err := s.attemptRepo.Delete(ctx, examID, userID); err != nil {
		return fmt.Errorf("delete attempt: %w", err)
	}
	if err := s.progress.Clear(ctx, examID, userID); err != nil {
		s.log.Warn().Err(err).Int("user_id", userID).Msg("Failed to clear cached progress")
	}

	s.log.Info().Int("user_id", userID).Str("exam_id", examID.String()).Msg("Participant reset")
	return nil
}
