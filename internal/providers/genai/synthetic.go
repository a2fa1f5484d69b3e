package genai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"edugen/internal/domain"
	"edugen/internal/generation"
)

// syntheticStream emits a deterministic artifact for p in small pieces so
// callers observe the same chunked delivery as a real model.
func (c *Client) syntheticStream(ctx context.Context, p generation.Prompt, emit func(string) error) error {
	seed := deterministicSeed(p.Kind, p.System, p.User, c.model)
	doc, err := syntheticDocument(p, seed)
	if err != nil {
		return err
	}
	size := 8 + int(seed[0])%16
	runes := []rune(doc)
	for len(runes) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := size
		if n > len(runes) {
			n = len(runes)
		}
		if err := emit(string(runes[:n])); err != nil {
			return err
		}
		runes = runes[n:]
	}

	c.logger.Debug().
		Str("kind", string(p.Kind)).
		Str("model", c.model).
		Str("seed", seed).
		Msg("genai: generated synthetic artifact")
	return nil
}

func syntheticDocument(p generation.Prompt, seed string) (string, error) {
	var v any
	switch p.Kind {
	case domain.KindQuiz:
		v = syntheticQuiz(p.Params, seed)
	case domain.KindRubric:
		v = syntheticRubric(p.Params)
	case domain.KindLessonPlan:
		v = syntheticLessonPlan(p.Params)
	default:
		return "", fmt.Errorf("genai: no synthetic template for kind %q", p.Kind)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("genai: marshal synthetic artifact: %w", err)
	}
	return string(data), nil
}

func syntheticQuiz(params map[string]string, seed string) *domain.Quiz {
	total := atoiDefault(params["num_questions"], 10)
	percentage := 70
	if n, err := strconv.Atoi(params["percentage"]); err == nil && n >= 0 && n <= 100 {
		percentage = n
	}
	choice := total * percentage / 100
	topic := firstNonEmpty(params["topic"], params["subject"], "kiến thức chung")

	q := &domain.Quiz{
		Name:          firstNonEmpty(params["name"], "Bài Kiểm Tra"),
		Subject:       domain.Label(params["subject"]),
		Grade:         domain.Label(params["grade"]),
		TimeLimit:     atoiDefault(params["time_limit"], 45),
		QuestionCount: total,
	}
	letters := []string{"A", "B", "C", "D"}
	for i := 1; i <= total; i++ {
		if i <= choice {
			correct := letters[(int(seed[i%len(seed)])+i)%len(letters)]
			options := make(map[string]string, len(letters))
			for _, l := range letters {
				options[l] = fmt.Sprintf("Phương án %s về %s", l, topic)
			}
			q.Questions = append(q.Questions, domain.Question{
				ID:            i,
				Type:          domain.QuestionMultipleChoice,
				Question:      fmt.Sprintf("Câu %d: Phát biểu nào đúng về %s?", i, topic),
				Options:       options,
				CorrectAnswer: correct,
				Explanation:   fmt.Sprintf("Phương án %s phù hợp với nội dung đã học.", correct),
			})
			continue
		}
		q.Questions = append(q.Questions, domain.Question{
			ID:            i,
			Type:          domain.QuestionEssay,
			Question:      fmt.Sprintf("Câu %d: Trình bày ngắn gọn một ứng dụng của %s.", i, topic),
			CorrectAnswer: "Học sinh nêu được ứng dụng và giải thích hợp lý.",
			Explanation:   "Chấm theo mức độ đầy đủ và chính xác của lập luận.",
		})
	}
	q.StudySuggestions = []string{"Ôn lại các khái niệm chính về " + topic + "."}
	return q
}

func syntheticRubric(params map[string]string) *domain.Rubric {
	n := atoiDefault(params["number_of_criteria"], 4)
	r := &domain.Rubric{
		RubricTitle:    firstNonEmpty(params["rubric_title"], "Rubric đánh giá"),
		Subject:        domain.Label(params["subject"]),
		GradeLevel:     domain.Label(params["grade_level"]),
		AssessmentType: params["assessment_type"],
		Scale: domain.RubricScale{
			Type:     "10-point",
			MaxScore: 10,
			Levels:   []string{"Xuất sắc", "Tốt", "Đạt", "Cần cải thiện"},
		},
	}
	// Integer weights that always sum to 100.
	base, rest := 100/n, 100%n
	for i := 0; i < n; i++ {
		w := base
		if i < rest {
			w++
		}
		r.Criteria = append(r.Criteria, domain.Criterion{
			Name:          fmt.Sprintf("Tiêu chí %d", i+1),
			WeightPercent: float64(w),
			Levels: []domain.RubricLevel{
				{Label: "Xuất sắc", ScoreRange: "9-10", Description: "Hoàn thành xuất sắc yêu cầu."},
				{Label: "Tốt", ScoreRange: "7-8", Description: "Hoàn thành tốt, còn thiếu sót nhỏ."},
				{Label: "Đạt", ScoreRange: "5-6", Description: "Đáp ứng yêu cầu cơ bản."},
				{Label: "Cần cải thiện", ScoreRange: "0-4", Description: "Chưa đáp ứng yêu cầu."},
			},
		})
	}
	return r
}

func syntheticLessonPlan(params map[string]string) *domain.LessonPlan {
	title := firstNonEmpty(params["title"], params["prompt"])
	l := &domain.LessonPlan{
		Header: domain.LessonHeader{
			Title:    title,
			Subject:  domain.Label(params["subject"]),
			Grade:    domain.Label(params["grade"]),
			Duration: params["duration"],
			Method:   params["method"],
		},
		Objectives: []string{"Học sinh nêu được nội dung chính của bài " + title + "."},
		Resources:  []string{"Sách giáo khoa", "Phiếu học tập"},
	}
	phase := func(name, goal string) *domain.Activity {
		return &domain.Activity{
			Name:           name,
			Goal:           goal,
			TeacherActions: []string{"Giáo viên giao nhiệm vụ và hướng dẫn."},
			StudentActions: []string{"Học sinh thực hiện nhiệm vụ và báo cáo."},
		}
	}
	if params["template"] == "" || params["template"] == generation.TemplateK12 {
		l.StartActivity = phase("Khởi động", "Tạo hứng thú học tập")
		l.KnowledgeFormationActivity = phase("Hình thành kiến thức", "Tìm hiểu nội dung mới")
		l.PracticeActivity = phase("Luyện tập", "Củng cố kiến thức")
		l.ExtendActivity = phase("Vận dụng", "Liên hệ thực tế")
		return l
	}
	for _, name := range []string{"Gắn kết", "Khám phá", "Giải thích", "Áp dụng", "Đánh giá"} {
		l.Activities = append(l.Activities, *phase(name, name+" cùng trẻ"))
	}
	return l
}

func atoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && n > 0 {
		return n
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}
