package citation

import (
	"sort"
	"strings"
	"unicode"

	"rag-agent-be/pkg/store"
)

type Config struct {
	NGramSize        int
	MinOverlap       float64 // share of n-grams in common, relative to the shorter text
	MinFragmentWords int     // a shared run this long cites on its own
	MaxCitations     int
}

// Extractor decides which of the passages given to the model are supported
// by its answer. It never emits an id outside the passages it is handed.
type Extractor struct {
	cfg Config
}

func NewExtractor(cfg Config) *Extractor {
	if cfg.NGramSize <= 0 {
		cfg.NGramSize = 4
	}
	return &Extractor{cfg: cfg}
}

type match struct {
	sourceID string
	position int
	rank     int
}

// Extract returns the source ids of supported passages ordered by where the
// response first draws on them, de-duplicated and capped.
func (e *Extractor) Extract(response string, included []store.Passage) []string {
	citations := []string{}
	respWords := tokenize(response)
	if len(respWords) == 0 || len(included) == 0 {
		return citations
	}
	respText := " " + strings.Join(respWords, " ") + " "

	var matches []match
	for rank, p := range included {
		if p.SourceID == "" {
			continue
		}
		if pos, ok := e.overlap(respWords, tokenize(p.Text)); ok {
			matches = append(matches, match{sourceID: p.SourceID, position: pos, rank: rank})
			continue
		}
		if pos, ok := mention(respText, p.URL, p.Header); ok {
			matches = append(matches, match{sourceID: p.SourceID, position: pos, rank: rank})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].position != matches[j].position {
			return matches[i].position < matches[j].position
		}
		return matches[i].rank < matches[j].rank
	})

	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if seen[m.sourceID] {
			continue
		}
		seen[m.sourceID] = true
		citations = append(citations, m.sourceID)
		if e.cfg.MaxCitations > 0 && len(citations) == e.cfg.MaxCitations {
			break
		}
	}
	return citations
}

// overlap reports whether the response draws on the passage and, if so,
// the word index of the first shared n-gram or fragment.
func (e *Extractor) overlap(resp, passage []string) (int, bool) {
	if len(passage) == 0 {
		return 0, false
	}

	// texts shorter than one n-gram can only cite through a shared run
	n := e.cfg.NGramSize
	if len(passage) < n || len(resp) < n {
		return e.fragment(resp, passage)
	}

	passageGrams := make(map[string]struct{})
	for i := 0; i+n <= len(passage); i++ {
		passageGrams[strings.Join(passage[i:i+n], " ")] = struct{}{}
	}

	first := -1
	respGrams := make(map[string]struct{})
	hits := make(map[string]struct{})
	for i := 0; i+n <= len(resp); i++ {
		gram := strings.Join(resp[i:i+n], " ")
		respGrams[gram] = struct{}{}
		if _, ok := passageGrams[gram]; ok {
			hits[gram] = struct{}{}
			if first < 0 {
				first = i
			}
		}
	}
	if first < 0 {
		return 0, false
	}

	denom := min(len(passageGrams), len(respGrams))
	if denom > 0 && float64(len(hits))/float64(denom) >= e.cfg.MinOverlap {
		return first, true
	}
	return e.fragment(resp, passage)
}

func (e *Extractor) fragment(resp, passage []string) (int, bool) {
	if e.cfg.MinFragmentWords <= 0 {
		return 0, false
	}
	if length, start := longestRun(resp, passage); length >= e.cfg.MinFragmentWords {
		return start, true
	}
	return 0, false
}

// longestRun returns the length and response offset of the longest
// contiguous word sequence the two texts share.
func longestRun(a, b []string) (int, int) {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	best, bestEnd := 0, 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > best {
					best, bestEnd = cur[j], i
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return best, bestEnd - best
}

// mention finds a literal reference to the passage url or section header.
func mention(respText string, refs ...string) (int, bool) {
	pos, found := 0, false
	for _, ref := range refs {
		words := tokenize(ref)
		if len(words) == 0 {
			continue
		}
		idx := strings.Index(respText, " "+strings.Join(words, " ")+" ")
		if idx < 0 {
			continue
		}
		at := strings.Count(respText[:idx+1], " ") - 1
		if !found || at < pos {
			pos, found = at, true
		}
	}
	return pos, found
}

// tokenize lowercases s, treats anything but letters and digits as a
// separator and returns the words.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
