package progress

// Achievement is an unlockable badge.
type Achievement struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	Threshold int    `json:"threshold"`
}

// achievementDef couples a badge to the metric that unlocks it.
type achievementDef struct {
	Achievement
	metric func(Stats) int
}

// Definitions are checked in declaration order; unlock events fire in
// this order too, so "first word" always precedes "word novice".
var achievementDefs = []achievementDef{
	{Achievement{ID: "first_word", Name: "初學者", Icon: "🌱", Threshold: 1}, func(s Stats) int { return s.WordsLearned }},
	{Achievement{ID: "word_novice", Name: "單字新手", Icon: "📚", Threshold: 10}, func(s Stats) int { return s.WordsLearned }},
	{Achievement{ID: "word_expert", Name: "單字達人", Icon: "🎓", Threshold: 50}, func(s Stats) int { return s.WordsLearned }},
	{Achievement{ID: "streak_beginner", Name: "持之以恆", Icon: "🔥", Threshold: 3}, func(s Stats) int { return s.CurrentStreak }},
	{Achievement{ID: "streak_warrior", Name: "連續戰士", Icon: "⚡", Threshold: 7}, func(s Stats) int { return s.CurrentStreak }},
	{Achievement{ID: "feynman_master", Name: "費曼大師", Icon: "🧠", Threshold: 10}, func(s Stats) int { return s.FeynmanCount }},
	{Achievement{ID: "force_warrior", Name: "強制勇士", Icon: "💪", Threshold: 5}, func(s Stats) int { return s.ForceCount }},
	{Achievement{ID: "quiz_expert", Name: "測驗高手", Icon: "🏆", Threshold: 20}, func(s Stats) int { return s.QuizCount }},
}

// AllAchievements returns every badge definition in unlock-check order.
func AllAchievements() []Achievement {
	out := make([]Achievement, 0, len(achievementDefs))
	for _, def := range achievementDefs {
		out = append(out, def.Achievement)
	}
	return out
}

// AchievementByID looks a badge definition up by its identifier.
func AchievementByID(id string) (Achievement, bool) {
	for _, def := range achievementDefs {
		if def.ID == id {
			return def.Achievement, true
		}
	}
	return Achievement{}, false
}

// HasAchievement reports whether the badge is already unlocked.
func (s Stats) HasAchievement(id string) bool {
	for _, a := range s.Achievements {
		if a == id {
			return true
		}
	}
	return false
}

// UnlockedAchievements returns full definitions for the badges the
// learner holds, in declaration order. Unknown IDs are skipped.
func (s Stats) UnlockedAchievements() []Achievement {
	unlocked := make([]Achievement, 0, len(s.Achievements))
	for _, def := range achievementDefs {
		if s.HasAchievement(def.ID) {
			unlocked = append(unlocked, def.Achievement)
		}
	}
	return unlocked
}

// CheckAchievements appends every newly earned badge to the ledger and
// returns them in unlock order. Already-unlocked badges never repeat.
func (s *Stats) CheckAchievements() []Achievement {
	var unlocked []Achievement
	for _, def := range achievementDefs {
		if s.HasAchievement(def.ID) {
			continue
		}
		if def.metric(*s) >= def.Threshold {
			s.Achievements = append(s.Achievements, def.ID)
			unlocked = append(unlocked, def.Achievement)
		}
	}
	return unlocked
}
