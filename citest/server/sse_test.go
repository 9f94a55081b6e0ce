package server_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jacopone/claude-nixos-automation-sub000/citest/testutil"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/approval"
)

var _ = Describe("GET /events/stream", func() {
	var sse *testutil.SSEClient

	BeforeEach(func() {
		sse = testServer.SSEClient()
		err := sse.Connect(ctx, "/events/stream")
		Expect(err).NotTo(HaveOccurred())

		_, err = sse.WaitForEvent("stream.connected", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		sse.Close()
	})

	It("should greet a new client", func() {
		matcher := testutil.NewEventMatcher(sse.Collected())
		Expect(matcher.CountType("stream.connected")).To(Equal(1))
	})

	It("should relay approvals recorded over HTTP", func() {
		rule := testutil.UniqueRule()
		_, err := client.RecordApproval(ctx, approval.Event{
			RuleText: rule,
			ScopeID:  "/tmp/scope-" + testutil.RandomString(6),
		})
		Expect(err).NotTo(HaveOccurred())

		evt, err := sse.WaitForEvent("approval.recorded", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())

		var data struct {
			RuleText string `json:"rule_text"`
			ScopeID  string `json:"scope_id"`
		}
		Expect(evt.Data).NotTo(BeNil())
		Expect(json.Unmarshal(evt.Data, &data)).To(Succeed())
		Expect(data.RuleText).To(Equal(rule))
		Expect(data.ScopeID).NotTo(BeEmpty())
	})

	It("should relay a full record-decide cycle", func() {
		own, err := testutil.StartTestServer()
		Expect(err).NotTo(HaveOccurred())
		defer own.Stop()
		c := own.Client()

		err = c.SeedApprovals(ctx, testutil.ApprovalSeries(
			"Bash(git status:*)", 5, "/home/dev/api", "/home/dev/web"))
		Expect(err).NotTo(HaveOccurred())

		_, err = c.Decide(ctx, "category:git_read_only", true)
		Expect(err).NotTo(HaveOccurred())

		// All engines publish on the process-wide bus, so this stream
		// sees the other server's activity too. Delivery order across
		// publishes is not guaranteed, so poll the collected stream.
		Eventually(func() bool {
			m := testutil.NewEventMatcher(sse.Collected())
			return m.HasType("rules.learned") && m.HasType("feedback.recorded")
		}, 5*time.Second, 100*time.Millisecond).Should(BeTrue())

		matcher := testutil.NewEventMatcher(sse.Collected())
		Expect(matcher.CountType("approval.recorded")).To(BeNumerically(">=", 5))
	})
})
