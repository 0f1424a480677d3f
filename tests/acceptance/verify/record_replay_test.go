package acceptance_test

import (
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/replayproof/engine/internal/report"
	"github.com/replayproof/engine/pkg/types"
)

var _ = Describe("Recording and live replay", Serial, func() {
	It("captures proxied traffic into the session store", func() {
		recorded := testEnv.Recorded
		Expect(recorded.SessionID).To(Equal("acceptance-checkout"))
		Expect(recorded.Metadata.Tags).To(ContainElement("acceptance"))
		Expect(recorded.Metadata.Environment).To(Equal("acceptance"))
		Expect(recorded.Interactions).To(HaveLen(2))

		By("Verifying the GET capture")
		get := recorded.Interactions[0]
		Expect(get.Request.Method).To(Equal("GET"))
		Expect(get.Request.Path).To(Equal("/api/products/42"))
		Expect(get.Request.Query).To(HaveKeyWithValue("expand", "reviews"))
		Expect(get.RequestHash).NotTo(BeEmpty())

		By("Verifying sensitive headers were redacted at capture time")
		Expect(get.Request.Headers["Authorization"]).To(Equal(types.RedactedValue))

		By("Verifying the POST capture")
		post := recorded.Interactions[1]
		Expect(post.Request.Method).To(Equal("POST"))
		Expect(post.Request.Path).To(Equal("/api/orders"))
		Expect(post.Response.StatusCode).To(Equal(201))
		body, ok := post.Response.Body.(map[string]any)
		Expect(ok).To(BeTrue())
		Expect(body).To(HaveKey("orderId"))
	})

	It("replays against an unchanged service and reports full compatibility", func(ctx SpecContext) {
		v := testEnv.NewVerifier(testEnv.LiveClient(), types.ModeDefault, replayOptions())

		result, err := v.Engine.Replay(ctx, testEnv.Recorded, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Summary.Total).To(Equal(2))
		Expect(result.Summary.Compatible).To(Equal(2))
		Expect(result.Summary.Errors).To(BeZero())
		Expect(result.Summary.CompatibilityScore).To(BeNumerically("==", 100))

		By("Verifying identifier and timestamp churn was tolerated, not ignored")
		Expect(result.Summary.ToleratedChanges).To(BeNumerically(">=", 1))
		Expect(result.Summary.EffectiveChanges).To(BeZero())
		for _, ir := range result.InteractionResults {
			Expect(ir.Source).To(Equal("live"))
			Expect(ir.Comparison.IsEffectivelyCompatible).To(BeTrue())
		}
	})

	It("flags removed fields when the service changes", func(ctx SpecContext) {
		testEnv.SetVersion("v2")
		DeferCleanup(func() { testEnv.SetVersion("v1") })

		v := testEnv.NewVerifier(testEnv.LiveClient(), types.ModeDefault, replayOptions())
		result, err := v.Engine.Replay(ctx, testEnv.Recorded, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Summary.Compatible).To(Equal(1))
		Expect(result.Summary.Incompatible).To(Equal(1))
		Expect(result.Summary.CompatibilityScore).To(BeNumerically("==", 50))

		By("Verifying the dropped field is reported as breaking")
		product := result.InteractionResults[0]
		Expect(product.Comparison.IsCompatible).To(BeFalse())
		Expect(diffPaths(product.Comparison.Differences, types.DiffRemoved)).To(ContainElement("price"))

		By("Verifying added body fields alone are not breaking")
		Expect(diffPaths(product.Comparison.Differences, types.DiffAdded)).To(ContainElement("inStock"))

		By("Building and persisting the report")
		rp := report.NewReporter(testEnv.Logger)
		r := rp.Build(result, report.Meta{Target: testEnv.Upstream.URL})
		Expect(incompatibilityKinds(r)).To(ContainElement(report.KindFieldRemoved))

		path := filepath.Join(GinkgoT().TempDir(), "report.json")
		Expect(rp.SaveFile(path, r)).To(Succeed())

		raw, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		var decoded report.Report
		Expect(json.Unmarshal(raw, &decoded)).To(Succeed())
		Expect(decoded.SessionID).To(Equal("acceptance-checkout"))
	})
})

func diffPaths(diffs []types.Difference, kind types.DiffKind) []string {
	var paths []string
	for _, d := range diffs {
		if d.Kind == kind {
			paths = append(paths, d.Path)
		}
	}
	return paths
}

func incompatibilityKinds(r *report.Report) []string {
	var kinds []string
	for _, inc := range r.Incompatibilities {
		kinds = append(kinds, inc.Kind)
	}
	return kinds
}
