package solver

// FallbackMessage is the localized text of the deterministic fallback Solution.
type FallbackMessage struct {
	Title       string `yaml:"title" json:"title"`
	Explanation string `yaml:"explanation" json:"explanation"`
	FinalAnswer string `yaml:"final_answer" json:"finalAnswer"`
}

// FallbackTable maps a language to its fallback message.
type FallbackTable map[Language]FallbackMessage

// DefaultFallbackTable returns the built-in messages for fr, ar and tn.
func DefaultFallbackTable() FallbackTable {
	arabic := FallbackMessage{
		Title:       "تحليل المسألة",
		Explanation: "لا يمكن حل هذا السؤال تلقائيا حاليا. يرجى إعادة صياغة السؤال أو المحاولة لاحقا.",
		FinalAnswer: "الحل يتطلب تحليل أعمق",
	}
	return FallbackTable{
		LanguageFrench: {
			Title:       "Analyse du problème",
			Explanation: "Impossible de résoudre automatiquement cette question pour le moment. Veuillez reformuler votre question ou réessayer plus tard.",
			FinalAnswer: "Solution nécessite une analyse plus approfondie",
		},
		LanguageArabic:   arabic,
		LanguageTunisian: arabic,
	}
}

// Lookup returns the message for lang, then for DefaultLanguage, then the built-in French text.
// Entries with an empty final answer are skipped.
func (t FallbackTable) Lookup(lang Language) FallbackMessage {
	if m, ok := t[lang.Normalize()]; ok && m.FinalAnswer != "" {
		return m.complete()
	}
	if m, ok := t[DefaultLanguage]; ok && m.FinalAnswer != "" {
		return m.complete()
	}
	return DefaultFallbackTable()[DefaultLanguage]
}

// Merge returns a copy of t overlaid with the non-empty entries of other.
func (t FallbackTable) Merge(other FallbackTable) FallbackTable {
	out := make(FallbackTable, len(t)+len(other))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range other {
		if v.FinalAnswer == "" {
			continue
		}
		out[k.Normalize()] = v
	}
	return out
}

// Solution builds the fallback Solution for lang: one step, confidence 0, source manual.
func (t FallbackTable) Solution(lang Language) Solution {
	m := t.Lookup(lang)
	return Solution{
		Steps: []Step{{
			Title:       m.Title,
			Explanation: m.Explanation,
			Category:    CategoryAmber,
		}},
		FinalAnswer: m.FinalAnswer,
		Confidence:  MinConfidence,
		Source:      SourceManual,
	}
}

func (m FallbackMessage) complete() FallbackMessage {
	if m.Title == "" {
		m.Title = m.FinalAnswer
	}
	if m.Explanation == "" {
		m.Explanation = m.FinalAnswer
	}
	return m
}
