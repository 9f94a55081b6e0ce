package server_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jacopone/claude-nixos-automation-sub000/citest/testutil"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/approval"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/feedback"
)

var _ = Describe("Server Endpoints", func() {

	// ==================== Status ====================
	Describe("GET /status", func() {
		It("should report all four detection tiers", func() {
			status, err := client.EngineStatus(ctx)
			Expect(err).NotTo(HaveOccurred())

			// No recalibration has run on this server.
			Expect(status.Thresholds.Version).To(Equal(0))
			Expect(status.Thresholds.Tiers).To(HaveLen(4))

			tiers := make(map[string]string)
			for _, t := range status.Thresholds.Tiers {
				tiers[string(t.Tier)] = t.Component
			}
			Expect(tiers).To(HaveKeyWithValue("SAFE", "pattern_detector"))
			Expect(tiers).To(HaveKeyWithValue("MODERATE", "pattern_detector"))
			Expect(tiers).To(HaveKeyWithValue("RISKY", "pattern_detector"))
			Expect(tiers).To(HaveKeyWithValue("CROSS_SCOPE", "cross_scope"))
		})

		It("should expose store paths", func() {
			status, err := client.EngineStatus(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Events.Path).NotTo(BeEmpty())
			Expect(status.Rules.Path).NotTo(BeEmpty())
		})

		It("should rate components without decisions as unknown", func() {
			status, err := client.EngineStatus(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(len(status.Health)).To(BeNumerically(">=", 2))
			for _, h := range status.Health {
				Expect(h.Rating).To(Equal(feedback.RatingUnknown))
			}
		})
	})

	// ==================== Events ====================
	Describe("POST /events", func() {
		It("should record an approval and echo it back", func() {
			rule := testutil.UniqueRule()
			recorded, err := client.RecordApproval(ctx, approval.Event{
				RuleText:  rule,
				SessionID: "sess-" + testutil.RandomString(6),
				ScopeID:   "/tmp/scope-" + testutil.RandomString(6),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(recorded.RuleText).To(Equal(rule))
			Expect(recorded.Timestamp).NotTo(BeZero())
		})

		It("should keep an explicit timestamp", func() {
			stamp := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Second)
			recorded, err := client.RecordApproval(ctx, approval.Event{
				Timestamp: stamp,
				RuleText:  testutil.UniqueRule(),
				ScopeID:   "/tmp/scope-" + testutil.RandomString(6),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(recorded.Timestamp.Equal(stamp)).To(BeTrue())
		})

		It("should grow the event log", func() {
			before, err := client.EngineStatus(ctx)
			Expect(err).NotTo(HaveOccurred())

			_, err = client.RecordApproval(ctx, approval.Event{
				RuleText: testutil.UniqueRule(),
				ScopeID:  "/tmp/scope-" + testutil.RandomString(6),
			})
			Expect(err).NotTo(HaveOccurred())

			after, err := client.EngineStatus(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(after.Events.Count).To(Equal(before.Events.Count + 1))
		})

		It("should reject an empty rule text", func() {
			resp, err := client.Post(ctx, "/events", map[string]string{
				"rule_text": "   ",
				"scope_id":  "/tmp/scope",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(400))
			Expect(resp.String()).To(ContainSubstring("INVALID_REQUEST"))
			Expect(resp.String()).To(ContainSubstring("rule_text is required"))
		})

		It("should reject malformed JSON", func() {
			resp, err := client.Post(ctx, "/events", nil,
				testutil.WithHeader("Content-Type", "application/json"))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(400))
			Expect(resp.String()).To(ContainSubstring("Invalid JSON body"))
		})
	})

	// ==================== Rules ====================
	Describe("GET /rules", func() {
		It("should return empty arrays before any batch lands", func() {
			resp, err := client.Get(ctx, "/rules")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.IsSuccess()).To(BeTrue())

			// null arrays would break strict JSON consumers
			Expect(resp.String()).To(ContainSubstring(`"rules":[]`))
			Expect(resp.String()).To(ContainSubstring(`"batches":[]`))
		})
	})

	// ==================== Suggestions ====================
	Describe("GET /suggestions", func() {
		It("should run a detection pass and propose nothing without recurring history", func() {
			res, err := client.Suggestions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Success).To(BeTrue())
			Expect(res.Suggestions).To(BeEmpty())
			Expect(res.ThresholdsVersion).To(Equal(0))
		})

		It("should serialize an empty result as an array", func() {
			resp, err := client.Get(ctx, "/suggestions")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.IsSuccess()).To(BeTrue())
			Expect(resp.String()).To(ContainSubstring(`"suggestions":[]`))
		})
	})

	// ==================== Decisions ====================
	Describe("POST /suggestions/{suggestionID}/decision", func() {
		var (
			own *testutil.TestServer
			c   *testutil.TestClient
		)

		BeforeEach(func() {
			var err error
			own, err = testutil.StartTestServer()
			Expect(err).NotTo(HaveOccurred())
			c = own.Client()

			err = c.SeedApprovals(ctx, testutil.ApprovalSeries(
				"Bash(git status:*)", 5, "/home/dev/api", "/home/dev/web"))
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			if own != nil {
				own.Stop()
			}
		})

		It("should accept a suggestion and install its rules", func() {
			result, err := c.Decide(ctx, "category:git_read_only", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Accepted).To(BeTrue())
			Expect(result.Added).To(HaveLen(5))
			Expect(result.BatchID).NotTo(BeEmpty())
			Expect(result.Backup).NotTo(BeEmpty())
			Expect(result.Skipped).To(BeEmpty())

			snapshot, err := c.LearnedRules(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(snapshot.Rules).To(HaveLen(5))
			Expect(snapshot.Rules).To(ContainElement("Bash(git status:*)"))
			Expect(snapshot.Batches).To(HaveLen(1))
		})

		It("should reject a suggestion without touching the rules", func() {
			result, err := c.Decide(ctx, "category:git_read_only", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Accepted).To(BeFalse())
			Expect(result.Added).To(BeEmpty())

			snapshot, err := c.LearnedRules(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(snapshot.Rules).To(BeEmpty())
		})

		It("should return 404 for a suggestion that is not current", func() {
			resp, err := c.Post(ctx, "/suggestions/category:package_install/decision",
				map[string]bool{"accept": true})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(404))
			Expect(resp.String()).To(ContainSubstring("NOT_FOUND"))
		})

		It("should require the accept field", func() {
			resp, err := c.Post(ctx, "/suggestions/category:git_read_only/decision",
				map[string]string{})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(400))
			Expect(resp.String()).To(ContainSubstring("accept is required"))
		})

		It("should reject malformed JSON", func() {
			resp, err := c.Post(ctx, "/suggestions/category:git_read_only/decision", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(400))
			Expect(resp.String()).To(ContainSubstring("Invalid JSON body"))
		})
	})

	// ==================== CORS ====================
	Describe("CORS", func() {
		It("should allow cross-origin browser clients", func() {
			resp, err := client.Get(ctx, "/status",
				testutil.WithHeader("Origin", "http://localhost:3000"))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.IsSuccess()).To(BeTrue())
			Expect(resp.Headers.Get("Access-Control-Allow-Origin")).NotTo(BeEmpty())
		})
	})
})
