// Package catalog defines the static pattern-category catalog and the tier
// parameter model used by the detectors.
package catalog

import (
	"regexp"
)

// Category is one named approval pattern: matchers recognize rule texts in
// the approval log, and rule templates are the concrete rules proposed when
// the pattern fires. Categories are read-only at detection time.
type Category struct {
	ID            string
	Description   string
	Tier          Tier
	Matchers      []*regexp.Regexp
	RuleTemplates []string
}

// Matches reports whether a rule text matches any of the category's matchers.
func (c Category) Matches(ruleText string) bool {
	for _, m := range c.Matchers {
		if m.MatchString(ruleText) {
			return true
		}
	}
	return false
}

// Catalog is an ordered collection of categories.
type Catalog struct {
	categories []Category
}

// New builds a catalog from the given categories, preserving order.
func New(categories []Category) *Catalog {
	return &Catalog{categories: append([]Category(nil), categories...)}
}

// Builtin returns the built-in catalog.
func Builtin() *Catalog {
	return New(builtinCategories)
}

// All returns the categories in catalog order.
func (c *Catalog) All() []Category {
	return append([]Category(nil), c.categories...)
}

// ForTier returns the categories of one tier, in catalog order.
func (c *Catalog) ForTier(tier Tier) []Category {
	var out []Category
	for _, cat := range c.categories {
		if cat.Tier == tier {
			out = append(out, cat)
		}
	}
	return out
}

// Get looks up a category by ID.
func (c *Catalog) Get(id string) (Category, bool) {
	for _, cat := range c.categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return Category{}, false
}

func re(pattern string) *regexp.Regexp {
	return regexp.MustCompile(pattern)
}

// builtinCategories is the static catalog. Matchers run against the exact
// rule text recorded in approval events, templates are stored verbatim when
// a suggestion is accepted.
var builtinCategories = []Category{
	{
		ID:          "git_read_only",
		Description: "Read-only git operations",
		Tier:        TierSafe,
		Matchers: []*regexp.Regexp{
			re(`^Bash\(git (status|log|diff|show|branch|remote|stash list|describe|rev-parse)\b`),
		},
		RuleTemplates: []string{
			"Bash(git status:*)",
			"Bash(git diff:*)",
			"Bash(git log:*)",
			"Bash(git show:*)",
			"Bash(git branch:*)",
		},
	},
	{
		ID:          "file_inspection",
		Description: "Read-only file and directory inspection",
		Tier:        TierSafe,
		Matchers: []*regexp.Regexp{
			re(`^Bash\((ls|cat|head|tail|wc|stat|file|tree|du|df)\b`),
		},
		RuleTemplates: []string{
			"Bash(ls:*)",
			"Bash(cat:*)",
			"Bash(head:*)",
			"Bash(tail:*)",
			"Bash(wc:*)",
		},
	},
	{
		ID:          "search_operations",
		Description: "Text and file search",
		Tier:        TierSafe,
		Matchers: []*regexp.Regexp{
			re(`^Bash\((grep|rg|find|fd|ag|which|whereis|locate)\b`),
		},
		RuleTemplates: []string{
			"Bash(grep:*)",
			"Bash(rg:*)",
			"Bash(find:*)",
			"Bash(which:*)",
		},
	},
	{
		ID:          "dev_utilities",
		Description: "Harmless developer utilities",
		Tier:        TierSafe,
		Matchers: []*regexp.Regexp{
			re(`^Bash\((echo|pwd|date|env|printenv|uname|whoami|basename|dirname|realpath)\b`),
		},
		RuleTemplates: []string{
			"Bash(echo:*)",
			"Bash(pwd:*)",
			"Bash(date:*)",
			"Bash(uname:*)",
		},
	},
	{
		ID:          "git_write_local",
		Description: "Local git mutations without remote interaction",
		Tier:        TierModerate,
		Matchers: []*regexp.Regexp{
			re(`^Bash\(git (add|commit|checkout|switch|restore|stash|merge|rebase|cherry-pick|tag|reset)\b`),
		},
		RuleTemplates: []string{
			"Bash(git add:*)",
			"Bash(git commit:*)",
			"Bash(git checkout:*)",
			"Bash(git stash:*)",
		},
	},
	{
		ID:          "build_test",
		Description: "Build and test invocations",
		Tier:        TierModerate,
		Matchers: []*regexp.Regexp{
			re(`^Bash\((make|go (build|test|vet|run)|cargo (build|test|check|run)|npm (run|test)|npx|yarn|pnpm|pytest|tox|mvn|gradle)\b`),
		},
		RuleTemplates: []string{
			"Bash(make:*)",
			"Bash(go build:*)",
			"Bash(go test:*)",
			"Bash(npm run:*)",
			"Bash(npm test:*)",
			"Bash(cargo build:*)",
			"Bash(cargo test:*)",
			"Bash(pytest:*)",
		},
	},
	{
		ID:          "package_query",
		Description: "Read-only package manager queries",
		Tier:        TierModerate,
		Matchers: []*regexp.Regexp{
			re(`^Bash\((npm (ls|list|view|outdated|audit)|pip (show|list|freeze)|go list|cargo tree|brew (list|info)|nix search)\b`),
		},
		RuleTemplates: []string{
			"Bash(npm ls:*)",
			"Bash(pip list:*)",
			"Bash(go list:*)",
			"Bash(cargo tree:*)",
		},
	},
	{
		ID:          "file_write_operations",
		Description: "Filesystem mutations",
		Tier:        TierRisky,
		Matchers: []*regexp.Regexp{
			re(`^Bash\((rm|mv|cp|mkdir|touch|chmod|chown|ln|rmdir)\b`),
		},
		// rm is deliberately absent from the templates: its events count
		// toward the pattern, but only the reversible subset is proposed.
		RuleTemplates: []string{
			"Bash(mkdir:*)",
			"Bash(touch:*)",
			"Bash(cp:*)",
			"Bash(mv:*)",
		},
	},
	{
		ID:          "git_remote",
		Description: "Git operations that touch remotes",
		Tier:        TierRisky,
		Matchers: []*regexp.Regexp{
			re(`^Bash\(git (push|pull|fetch|clone)\b`),
		},
		RuleTemplates: []string{
			"Bash(git fetch:*)",
			"Bash(git pull:*)",
			"Bash(git push:*)",
		},
	},
	{
		ID:          "package_install",
		Description: "Package installation",
		Tier:        TierRisky,
		Matchers: []*regexp.Regexp{
			re(`^Bash\((npm (install|add|i)\b|pip install|go install|cargo install|apt(-get)? install|brew install)`),
		},
		RuleTemplates: []string{
			"Bash(npm install:*)",
			"Bash(pip install:*)",
			"Bash(go install:*)",
		},
	},
	{
		ID:          "web_fetch",
		Description: "Web content fetches",
		Tier:        TierRisky,
		Matchers: []*regexp.Regexp{
			re(`^WebFetch\(`),
			re(`^Bash\((curl|wget)\b`),
		},
		RuleTemplates: []string{
			"WebFetch(domain:*)",
		},
	},
}
