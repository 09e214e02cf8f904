package drill

import (
	"math"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
)

// Score weights: accuracy dominates, speed is the bonus.
const (
	accuracyWeight = 70
	speedWeight    = 30
)

// Grade labels the overall score.
type Grade string

const (
	GradeExcellent  Grade = "excellent"   // >= 90
	GradeGreat      Grade = "great"       // >= 80
	GradeGood       Grade = "good"        // >= 70
	GradePass       Grade = "pass"        // >= 60
	GradeKeepTrying Grade = "keep_trying" // below 60
)

// gradeFor maps an overall score to its grade.
func gradeFor(overall int) Grade {
	switch {
	case overall >= 90:
		return GradeExcellent
	case overall >= 80:
		return GradeGreat
	case overall >= 70:
		return GradeGood
	case overall >= 60:
		return GradePass
	default:
		return GradeKeepTrying
	}
}

// Result is the outcome of a completed session.
type Result struct {
	SessionID      string   `json:"session_id"`
	Correct        int      `json:"correct"`
	Answered       int      `json:"answered"`
	TotalQuestions int      `json:"total_questions"`
	TargetMet      bool     `json:"target_met"`
	Accuracy       float64  `json:"accuracy"`
	SpeedBonus     float64  `json:"speed_bonus"`
	Overall        int      `json:"overall"`
	Grade          Grade    `json:"grade"`
	ElapsedSeconds int      `json:"elapsed_seconds"`
	Answers        []Answer `json:"answers"`
}

// Result computes the score of a finished session. Accuracy is over
// the full question count, so items left unanswered when the quiz
// timer runs out score as wrong; the speed bonus rewards finishing
// inside the time budget.
func (s *Session) Result() (Result, error) {
	if s.phase != PhaseResult {
		return Result{}, shared.ErrDrillPhase
	}

	answered := len(s.answers)

	accuracy := 0.0
	if total := len(s.Questions); total > 0 {
		accuracy = float64(s.correct) / float64(total)
	}

	totalAllowed := s.Config.TotalAllowedSeconds()
	speedBonus := 0.0
	if totalAllowed > 0 {
		speedBonus = 1.0 - float64(s.elapsed)/float64(totalAllowed)
		if speedBonus < 0 {
			speedBonus = 0
		}
	}

	overall := int(math.Round(accuracy*accuracyWeight + speedBonus*speedWeight))

	return Result{
		SessionID:      s.ID,
		Correct:        s.correct,
		Answered:       answered,
		TotalQuestions: len(s.Questions),
		TargetMet:      s.correct >= s.Config.TargetCorrect,
		Accuracy:       accuracy,
		SpeedBonus:     speedBonus,
		Overall:        overall,
		Grade:          gradeFor(overall),
		ElapsedSeconds: s.elapsed,
		Answers:        s.Answers(),
	}, nil
}
