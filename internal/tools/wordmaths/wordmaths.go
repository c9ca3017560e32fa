// Package wordmaths provides the "wordmaths" tool group: practice word
// problems drawn from a JSON problem set.
//
// Random picks are remembered and not repeated until reset_used_problems is
// called. Asking for a problem by number never marks it as used.
package wordmaths

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/nanobot-edge/nanobot/internal/tools"
	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
)

// Problem is one word problem.
type Problem struct {
	ProblemNumber int    `json:"problemNumber"`
	Category      string `json:"category"`
	Difficulty    string `json:"difficulty"`
	Question      string `json:"question"`
	Answer        string `json:"answer"`
	Calculation   string `json:"calculation"`
	Explanation   string `json:"explanation,omitempty"`
}

// Set holds the problems and the used-problem tracking. Safe for concurrent
// use.
type Set struct {
	problems []Problem

	mu   sync.Mutex
	used map[int]bool
	rng  *rand.Rand
}

// Parse decodes a JSON array of problems.
func Parse(data []byte) ([]Problem, error) {
	var ps []Problem
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, fmt.Errorf("wordmaths: parse problems: %w", err)
	}
	return ps, nil
}

// Load reads a problem set from a JSON file.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wordmaths: %w", err)
	}
	ps, err := Parse(data)
	if err != nil {
		return nil, err
	}
	s := NewSet(ps, nil)
	slog.Info("word maths problems loaded", "path", path, "problems", len(ps),
		"difficulties", len(s.Difficulties()))
	return s, nil
}

// NewSet returns a Set over problems. rng may be nil.
func NewSet(problems []Problem, rng *rand.Rand) *Set {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Set{problems: problems, used: make(map[int]bool), rng: rng}
}

func (s *Set) matching(category, difficulty string) []Problem {
	var out []Problem
	for _, p := range s.problems {
		if difficulty != "" && p.Difficulty != difficulty {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Pick selects a problem. With number > 0 it returns the number-th matching
// problem (1-based), or a random one when out of range. Without a number it
// returns a random unused problem and marks it used. The returned
// ProblemNumber is the position within the matching problems.
func (s *Set) Pick(category, difficulty string, number int) Problem {
	s.mu.Lock()
	defer s.mu.Unlock()

	none := Problem{Category: category, Difficulty: difficulty, Answer: "N/A", Calculation: "N/A"}
	if len(s.problems) == 0 {
		none.Question = "No problems available"
		return none
	}

	all := s.matching(category, difficulty)
	candidates := all
	if number <= 0 {
		candidates = slices.DeleteFunc(slices.Clone(all), func(p Problem) bool { return s.used[p.ProblemNumber] })
	}
	if len(candidates) == 0 {
		if len(all) > 0 {
			none.Question = fmt.Sprintf("All %d problems for this category and difficulty have been used. Call reset_used_problems to start over.", len(all))
			return none
		}
		none.Question = "No problems available for the specified criteria"
		return none
	}

	idx := number - 1
	if number <= 0 || number > len(candidates) {
		if number > 0 {
			slog.Warn("word maths problem number out of range, picking at random", "number", number, "available", len(candidates))
		}
		idx = s.rng.IntN(len(candidates))
	}
	p := candidates[idx]
	if number <= 0 {
		s.used[p.ProblemNumber] = true
	}
	p.ProblemNumber = idx + 1
	return p
}

// Categories returns the sorted categories of a difficulty level.
func (s *Set) Categories(difficulty string) []string {
	var out []string
	for _, p := range s.problems {
		if p.Difficulty == difficulty && !slices.Contains(out, p.Category) {
			out = append(out, p.Category)
		}
	}
	slices.Sort(out)
	return out
}

// Count returns the number of problems in a category and difficulty.
func (s *Set) Count(category, difficulty string) int {
	n := 0
	for _, p := range s.problems {
		if p.Category == category && p.Difficulty == difficulty {
			n++
		}
	}
	return n
}

// Difficulties returns the sorted difficulty levels.
func (s *Set) Difficulties() []string {
	var out []string
	for _, p := range s.problems {
		if !slices.Contains(out, p.Difficulty) {
			out = append(out, p.Difficulty)
		}
	}
	slices.Sort(out)
	return out
}

// ResetUsed makes every problem available again.
func (s *Set) ResetUsed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.used)
}

type pickArgs struct {
	Category      string `json:"category"`
	Difficulty    string `json:"difficulty"`
	ProblemNumber int    `json:"problemNumber"`
}

type countArgs struct {
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
}

// defaultDifficulty applies to the listing tools when none is given.
const defaultDifficulty = "3"

// Tools returns the word maths tools bound to s.
func Tools(s *Set) []tools.Tool {
	difficulty := tools.String("Difficulty level, e.g. \"3\".")
	category := tools.String("Problem category, e.g. \"fractions\".")

	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "get_word_maths_problem",
				Description: "Gets a word maths problem from the specified category and difficulty level. If problemNumber is specified, returns that specific problem; otherwise returns a random problem that has not been used yet.",
				Parameters: tools.Object(map[string]any{
					"category":      category,
					"difficulty":    difficulty,
					"problemNumber": tools.Integer("1-based problem number within the category and difficulty."),
				}),
			},
			Group: tools.GroupWordMaths,
			Handler: func(_ context.Context, args string) (string, error) {
				a, err := tools.Decode[pickArgs](args)
				if err != nil {
					return "", err
				}
				return tools.Encode(s.Pick(a.Category, a.Difficulty, a.ProblemNumber))
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "get_available_categories",
				Description: "Gets all available problem categories for a difficulty level.",
				Parameters:  tools.Object(map[string]any{"difficulty": difficulty}),
			},
			Group: tools.GroupWordMaths,
			Handler: func(_ context.Context, args string) (string, error) {
				a, err := tools.Decode[countArgs](args)
				if err != nil {
					return "", err
				}
				return strings.Join(s.Categories(cmp.Or(a.Difficulty, defaultDifficulty)), ", "), nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "get_problem_count",
				Description: "Gets the number of problems in a category and difficulty level.",
				Parameters:  tools.Object(map[string]any{"category": category, "difficulty": difficulty}, "category"),
			},
			Group: tools.GroupWordMaths,
			Handler: func(_ context.Context, args string) (string, error) {
				a, err := tools.Decode[countArgs](args)
				if err != nil {
					return "", err
				}
				return fmt.Sprint(s.Count(a.Category, cmp.Or(a.Difficulty, defaultDifficulty))), nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "get_available_difficulty_levels",
				Description: "Gets all available difficulty levels.",
				Parameters:  tools.Object(nil),
			},
			Group: tools.GroupWordMaths,
			Handler: func(context.Context, string) (string, error) {
				return strings.Join(s.Difficulties(), ", "), nil
			},
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "reset_used_problems",
				Description: "Resets the used problem tracking so every problem can be picked again.",
				Parameters:  tools.Object(nil),
			},
			Group: tools.GroupWordMaths,
			Handler: func(context.Context, string) (string, error) {
				s.ResetUsed()
				return "All problems are available again.", nil
			},
		},
	}
}
