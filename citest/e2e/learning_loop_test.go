package e2e_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jacopone/claude-nixos-automation-sub000/citest/testutil"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/catalog"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/detect"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/engine"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/feedback"
)

// findByID returns the suggestion with the given fingerprint, or nil.
func findByID(res *engine.DetectionResult, id string) *detect.Suggestion {
	for i := range res.Suggestions {
		if res.Suggestions[i].ID == id {
			return &res.Suggestions[i]
		}
	}
	return nil
}

func suggestionIDs(res *engine.DetectionResult) []string {
	ids := make([]string, 0, len(res.Suggestions))
	for _, s := range res.Suggestions {
		ids = append(ids, s.ID)
	}
	return ids
}

var _ = Describe("Learning Loop", func() {
	var (
		ts *testutil.TestServer
		c  *testutil.TestClient
	)

	BeforeEach(func() {
		var err error
		ts, err = testutil.StartTestServer()
		Expect(err).NotTo(HaveOccurred())
		c = ts.Client()
	})

	AfterEach(func() {
		if ts != nil {
			ts.Stop()
		}
	})

	seedGitHistory := func() {
		err := c.SeedApprovals(ctx, testutil.ApprovalSeries(
			"Bash(git status:*)", 5, "/home/dev/api", "/home/dev/web"))
		Expect(err).NotTo(HaveOccurred())
	}

	It("should learn git read-only rules from repeated approvals", func() {
		// Five approvals of the same command across two projects is
		// enough history for the SAFE tier.
		seedGitHistory()

		res, err := c.Suggestions(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Success).To(BeTrue())
		Expect(res.EventCount).To(Equal(5))

		ids := suggestionIDs(res)
		Expect(ids).To(ContainElement("category:git_read_only"))
		Expect(ids).To(ContainElement("cross_scope:git"))

		// Highest confidence first; the wildcard generalization carries
		// the cross-scope boost.
		Expect(res.Suggestions[0].ID).To(Equal("cross_scope:git"))

		gitRead := findByID(res, "category:git_read_only")
		Expect(gitRead).NotTo(BeNil())
		Expect(gitRead.Tier).To(Equal(catalog.TierSafe))
		Expect(gitRead.Confidence).To(BeNumerically("~", 0.85, 0.001))
		Expect(gitRead.Source.Occurrences).To(Equal(5))
		Expect(gitRead.ProposedRules).To(HaveLen(5))
		Expect(gitRead.WouldAllow).To(ContainElement("Bash(git status:*)"))

		wildcard := findByID(res, "cross_scope:git")
		Expect(wildcard).NotTo(BeNil())
		Expect(wildcard.Tier).To(Equal(catalog.TierCrossScope))
		Expect(wildcard.Confidence).To(BeNumerically("~", 0.95, 0.001))
		Expect(wildcard.ProposedRules).To(Equal([]string{"Bash(git:*)"}))

		// Accept the category suggestion.
		dec, err := c.Decide(ctx, "category:git_read_only", true)
		Expect(err).NotTo(HaveOccurred())
		Expect(dec.Accepted).To(BeTrue())
		Expect(dec.Added).To(HaveLen(5))
		Expect(dec.Skipped).To(BeEmpty())
		Expect(dec.BatchID).NotTo(BeEmpty())
		Expect(dec.Backup).NotTo(BeEmpty())

		snapshot, err := c.LearnedRules(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(snapshot.Rules).To(ConsistOf(
			"Bash(git status:*)",
			"Bash(git diff:*)",
			"Bash(git log:*)",
			"Bash(git show:*)",
			"Bash(git branch:*)",
		))
		Expect(snapshot.Batches).To(HaveLen(1))
		Expect(snapshot.Provenance).To(HaveKey("Bash(git status:*)"))

		// The next pass must not re-propose what is already covered.
		res2, err := c.Suggestions(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(suggestionIDs(res2)).NotTo(ContainElement("category:git_read_only"))
		Expect(res2.SkippedCovered).To(BeNumerically(">=", 1))
	})

	It("should suppress a rejected suggestion on later passes", func() {
		seedGitHistory()

		dec, err := c.Decide(ctx, "cross_scope:git", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(dec.Accepted).To(BeFalse())
		Expect(dec.Added).To(BeEmpty())

		res, err := c.Suggestions(ctx)
		Expect(err).NotTo(HaveOccurred())

		ids := suggestionIDs(res)
		Expect(ids).NotTo(ContainElement("cross_scope:git"))
		// The rejection is scoped to one fingerprint, not the whole run.
		Expect(ids).To(ContainElement("category:git_read_only"))
	})

	It("should let an accept supersede an earlier rejection", func() {
		seedGitHistory()

		_, err := c.Decide(ctx, "cross_scope:git", false)
		Expect(err).NotTo(HaveOccurred())

		// Deciding by ID looks past the rejection, so the verdict can be
		// reversed without touching stored state by hand.
		dec, err := c.Decide(ctx, "cross_scope:git", true)
		Expect(err).NotTo(HaveOccurred())
		Expect(dec.Accepted).To(BeTrue())
		Expect(dec.Added).To(Equal([]string{"Bash(git:*)"}))

		res, err := c.Suggestions(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(suggestionIDs(res)).NotTo(ContainElement("cross_scope:git"))
		Expect(res.SkippedCovered).To(BeNumerically(">=", 1))
	})

	// seedMixedHistory lays down three commands, each recurring across two
	// scopes, so three distinct cross-scope suggestions surface.
	seedMixedHistory := func() {
		for _, rule := range []string{
			"Bash(git status:*)",
			"Bash(npm test:*)",
			"Bash(docker ps:*)",
		} {
			err := c.SeedApprovals(ctx, testutil.ApprovalSeries(
				rule, 5, "/home/dev/api", "/home/dev/web"))
			Expect(err).NotTo(HaveOccurred())
		}
	}

	It("should tighten thresholds after repeated rejections", func() {
		seedMixedHistory()

		// Only the latest verdict per suggestion counts, so crossing the
		// feedback minimum takes three distinct rejections.
		for _, id := range []string{"cross_scope:git", "cross_scope:npm", "cross_scope:docker"} {
			dec, err := c.Decide(ctx, id, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(dec.Accepted).To(BeFalse())
		}

		recal, err := ts.Engine.RunRecalibration(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(recal.Success).To(BeTrue())
		Expect(recal.Version).To(Equal(1))
		Expect(recal.Adjustments).NotTo(BeEmpty())
		for _, adj := range recal.Adjustments {
			Expect(adj.Tier).To(Equal(catalog.TierCrossScope))
		}

		status, err := c.EngineStatus(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Thresholds.Version).To(Equal(1))

		for _, tier := range status.Thresholds.Tiers {
			if tier.Tier != catalog.TierCrossScope {
				continue
			}
			Expect(tier.Params.MinOccurrences).To(Equal(4))
			Expect(tier.Params.ConfidenceThreshold).To(BeNumerically("~", 0.65, 0.001))
		}

		// Each pass moves at most one step; a second pass tightens one
		// more notch within the tier bounds.
		recal2, err := ts.Engine.RunRecalibration(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(recal2.Version).To(Equal(2))
	})

	It("should track decision health per component", func() {
		seedMixedHistory()

		for _, id := range []string{"cross_scope:git", "cross_scope:npm", "cross_scope:docker"} {
			_, err := c.Decide(ctx, id, false)
			Expect(err).NotTo(HaveOccurred())
		}

		status, err := c.EngineStatus(ctx)
		Expect(err).NotTo(HaveOccurred())

		health := make(map[string]feedback.ComponentHealth)
		for _, h := range status.Health {
			health[h.Component] = h
		}

		crossScope := health["cross_scope"]
		Expect(crossScope.Decisions).To(Equal(3))
		Expect(crossScope.AcceptanceRate).To(BeNumerically("==", 0))
		Expect(crossScope.Rating).To(Equal(feedback.RatingPoor))

		// No verdicts for the category detector yet.
		Expect(health["pattern_detector"].Rating).To(Equal(feedback.RatingUnknown))
	})

	It("should count a reverted rule against its component", func() {
		seedGitHistory()

		_, err := c.Decide(ctx, "category:git_read_only", true)
		Expect(err).NotTo(HaveOccurred())

		err = ts.Engine.MarkReverted(ctx, "category:git_read_only")
		Expect(err).NotTo(HaveOccurred())

		status, err := c.EngineStatus(ctx)
		Expect(err).NotTo(HaveOccurred())

		for _, h := range status.Health {
			if h.Component != "pattern_detector" {
				continue
			}
			Expect(h.Decisions).To(Equal(1))
			Expect(h.AcceptanceRate).To(BeNumerically("==", 1))
			Expect(h.FalsePositiveRate).To(BeNumerically("==", 1))
			// 0.7*acceptance + 0.3*(1-reverts) lands exactly on the
			// good cutoff.
			Expect(h.Score).To(BeNumerically("~", 0.70, 0.001))
			Expect(h.Rating).To(Equal(feedback.RatingGood))
		}
	})
})
