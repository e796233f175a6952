package strategies

import (
	"context"
	"strings"

	"github.com/matiasleandrokruk/tutora/internal/domain/solver"
)

const (
	HeuristicMatchConfidence   = 75
	HeuristicNoMatchConfidence = 40
)

type localized struct {
	fr, ar string
}

func (l localized) in(lang solver.Language) string {
	if lang.UsesArabicScript() {
		return l.ar
	}
	return l.fr
}

type pattern struct {
	keywords    []string
	title       localized
	explanation localized
	math        string
}

var patterns = []pattern{
	{
		keywords:    []string{"limite", "limit", "نهاية"},
		title:       localized{"Identifier le type de limite", "تحديد نوع النهاية"},
		explanation: localized{"Analyser la forme de la fonction au point considéré et lever une éventuelle forme indéterminée", "تحليل شكل الدالة عند النقطة المعتبرة ورفع حالة عدم التعيين إن وجدت"},
		math:        `\lim_{x \to a} f(x)`,
	},
	{
		keywords:    []string{"dérivée", "dériver", "derivative", "مشتق", "اشتقاق"},
		title:       localized{"Appliquer les règles de dérivation", "تطبيق قواعد الاشتقاق"},
		explanation: localized{"Utiliser les formules de dérivation appropriées (somme, produit, quotient, composée)", "استخدام صيغ الاشتقاق المناسبة (مجموع، جداء، حاصل قسمة، تركيب)"},
		math:        `(uv)' = u'v + uv'`,
	},
	{
		keywords:    []string{"intégrale", "primitive", "integral", "تكامل", "دالة أصلية"},
		title:       localized{"Déterminer une primitive", "إيجاد دالة أصلية"},
		explanation: localized{"Chercher une primitive de la fonction puis appliquer les bornes", "البحث عن دالة أصلية ثم تطبيق الحدود"},
		math:        `\int_a^b f(x)\,dx = F(b) - F(a)`,
	},
	{
		keywords:    []string{"équation", "résoudre", "equation", "solve", "معادلة"},
		title:       localized{"Isoler l'inconnue", "عزل المجهول"},
		explanation: localized{"Regrouper les termes contenant l'inconnue d'un côté et simplifier", "تجميع الحدود التي تحتوي على المجهول في طرف واحد ثم التبسيط"},
		math:        `ax + b = 0 \iff x = -\frac{b}{a}`,
	},
	{
		keywords:    []string{"matrice", "déterminant", "matrix", "determinant", "مصفوفة", "محدد"},
		title:       localized{"Calculer avec les matrices", "الحساب بالمصفوفات"},
		explanation: localized{"Écrire la matrice et calculer son déterminant ou son inverse", "كتابة المصفوفة وحساب محددها أو مقلوبها"},
		math:        `\det\begin{pmatrix}a & b\\ c & d\end{pmatrix} = ad - bc`,
	},
	{
		keywords:    []string{"probabilité", "probability", "احتمال"},
		title:       localized{"Modéliser l'expérience aléatoire", "نمذجة التجربة العشوائية"},
		explanation: localized{"Définir l'univers et les événements puis appliquer les règles de probabilité", "تحديد فضاء الإمكانيات والأحداث ثم تطبيق قواعد الاحتمال"},
		math:        `P(A \cup B) = P(A) + P(B) - P(A \cap B)`,
	},
}

var (
	analysisStep = pattern{
		title:       localized{"Analyse du problème", "تحليل المسألة"},
		explanation: localized{"Identifier les éléments clés du problème", "تحديد العناصر الأساسية للمسألة"},
	}
	followSteps = localized{"Suivez les étapes ci-dessus", "اتبع الخطوات أعلاه"}
	needsMore   = localized{"Solution nécessite une analyse plus approfondie", "الحل يتطلب تحليل أعمق"}
)

// Heuristic recognises common exercise families by keyword and returns a
// method outline. It never calls out of process.
type Heuristic struct{}

func NewHeuristic() *Heuristic { return &Heuristic{} }

func (*Heuristic) Name() string { return NameHeuristic }

func (*Heuristic) Solve(ctx context.Context, q solver.Question) (*solver.Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := strings.ToLower(q.Text)

	var steps []solver.Step
	for _, p := range patterns {
		if !containsAny(text, p.keywords) {
			continue
		}
		steps = append(steps, solver.Step{
			Title:       p.title.in(q.Language),
			Explanation: p.explanation.in(q.Language),
			Math:        p.math,
			Category:    solver.CategoryAt(len(steps)),
		})
	}

	if len(steps) == 0 {
		return &solver.Solution{
			Steps: []solver.Step{{
				Title:       analysisStep.title.in(q.Language),
				Explanation: analysisStep.explanation.in(q.Language),
				Category:    solver.CategoryBlue,
			}},
			FinalAnswer: needsMore.in(q.Language),
			Confidence:  HeuristicNoMatchConfidence,
			Source:      NameHeuristic,
		}, nil
	}
	return &solver.Solution{
		Steps:       steps,
		FinalAnswer: followSteps.in(q.Language),
		Confidence:  HeuristicMatchConfidence,
		Source:      NameHeuristic,
	}, nil
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
