package classify

import (
	"math"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/poiesic/aisync/core"
)

const (
	// DefaultThreshold is the score a profile must exceed to be chosen.
	DefaultThreshold = 0.1

	// analysisMessages is how many leading messages feed classification.
	analysisMessages = 5
)

// Profile maps an application name to the keywords that identify it.
type Profile struct {
	AppName  string
	Keywords []string
}

type compiledKeyword struct {
	keyword string
	pattern *regexp.Regexp
}

type compiledProfile struct {
	appName  string
	keywords []compiledKeyword
}

// Classifier scores conversations against keyword profiles.
// It is safe for concurrent use.
type Classifier struct {
	mu        sync.RWMutex
	profiles  []compiledProfile
	threshold float64
}

// Option configures a Classifier.
type Option func(*Classifier) error

// WithThreshold sets the minimum score for a non-general result.
func WithThreshold(threshold float64) Option {
	return func(c *Classifier) error {
		c.threshold = threshold
		return nil
	}
}

// WithProfiles replaces the default profile list.
func WithProfiles(profiles ...Profile) Option {
	return func(c *Classifier) error {
		c.profiles = c.profiles[:0]
		for _, p := range profiles {
			c.profiles = append(c.profiles, compileProfile(p.AppName, p.Keywords))
		}
		return nil
	}
}

// NewClassifier creates a classifier seeded with DefaultProfiles.
func NewClassifier(opts ...Option) (*Classifier, error) {
	c := &Classifier{threshold: DefaultThreshold}
	for _, p := range DefaultProfiles() {
		c.profiles = append(c.profiles, compileProfile(p.AppName, p.Keywords))
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AddMapping registers keywords for an application. An existing profile
// with the same name has its keywords replaced and keeps its position.
func (c *Classifier) AddMapping(appName string, keywords ...string) {
	compiled := compileProfile(appName, keywords)

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.profiles {
		if c.profiles[i].appName == appName {
			c.profiles[i] = compiled
			return
		}
	}
	c.profiles = append(c.profiles, compiled)
}

// Profiles returns a copy of the configured profiles in evaluation order.
func (c *Classifier) Profiles() []Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]Profile, len(c.profiles))
	for i, p := range c.profiles {
		keywords := make([]string, len(p.keywords))
		for j, k := range p.keywords {
			keywords[j] = k.keyword
		}
		result[i] = Profile{AppName: p.appName, Keywords: keywords}
	}
	return result
}

type candidate struct {
	appName  string
	score    float64
	keywords []string
}

// Classify scores the title and first messages of a conversation.
// Each matched keyword adds min(occurrences*0.1, 1); the profile score is
// min(raw/keywordCount*2, 1). Ties go to the earlier profile.
func (c *Classifier) Classify(conv *core.ParsedConversation) core.ClassificationResult {
	text := analysisText(conv)

	c.mu.RLock()
	candidates := make([]candidate, 0, len(c.profiles))
	for _, p := range c.profiles {
		if len(p.keywords) == 0 {
			continue
		}
		var raw float64
		var matched []string
		for _, k := range p.keywords {
			occurrences := len(k.pattern.FindAllStringIndex(text, -1))
			if occurrences == 0 {
				continue
			}
			raw += math.Min(float64(occurrences)*0.1, 1)
			matched = append(matched, k.keyword)
		}
		score := math.Min(raw/float64(len(p.keywords))*2, 1)
		candidates = append(candidates, candidate{appName: p.appName, score: score, keywords: matched})
	}
	threshold := c.threshold
	c.mu.RUnlock()

	slices.SortStableFunc(candidates, func(a, b candidate) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	if len(candidates) == 0 || candidates[0].score <= threshold {
		return core.ClassificationResult{AppName: core.GeneralApp, Score: 0, Keywords: []string{}}
	}
	top := candidates[0]
	return core.ClassificationResult{AppName: top.appName, Score: top.score, Keywords: top.keywords}
}

func analysisText(conv *core.ParsedConversation) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(conv.Title))
	for i, msg := range conv.Messages {
		if i == analysisMessages {
			break
		}
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(msg.Content))
	}
	return b.String()
}

func compileProfile(appName string, keywords []string) compiledProfile {
	p := compiledProfile{appName: appName}
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		p.keywords = append(p.keywords, compiledKeyword{
			keyword: k,
			pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(k) + `\b`),
		})
	}
	return p
}
