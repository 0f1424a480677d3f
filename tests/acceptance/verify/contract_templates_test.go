package acceptance_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/replayproof/engine/internal/contract"
	"github.com/replayproof/engine/internal/replay"
	"github.com/replayproof/engine/pkg/types"
)

var _ = Describe("Contract-derived template replay", Serial, func() {
	var v *Verifier

	BeforeEach(func() {
		v = testEnv.NewVerifier(nil, types.ModeDefault, replay.Options{
			UseDynamicResponses: true,
			PreloadTemplates:    true,
		})
		registered, err := contract.NewImporter(v.Resolver, testEnv.Logger).
			ImportFile(testEnv.WriteContract())
		Expect(err).NotTo(HaveOccurred())
		Expect(registered).To(Equal(2))
	})

	It("verifies a recorded session without a live service", func(ctx SpecContext) {
		result, err := v.Engine.Replay(ctx, testEnv.Recorded, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Summary.Total).To(Equal(2))
		Expect(result.Summary.Incompatible).To(BeZero())
		Expect(result.Summary.Errors).To(BeZero())
		Expect(result.Summary.EffectiveCompatibilityScore).To(BeNumerically("==", 100))

		for _, ir := range result.InteractionResults {
			Expect(ir.Source).To(Equal("template"))
			Expect(ir.Comparison.IsEffectivelyCompatible).To(BeTrue())
		}
	})

	It("compiles templates once and serves repeat replays from cache", func(ctx SpecContext) {
		_, err := v.Engine.Replay(ctx, testEnv.Recorded, nil)
		Expect(err).NotTo(HaveOccurred())
		_, err = v.Engine.Replay(ctx, testEnv.Recorded, nil)
		Expect(err).NotTo(HaveOccurred())

		metrics := v.Engine.Metrics()
		Expect(metrics.TemplateCompilations).To(Equal(int64(2)))
		Expect(metrics.TemplateRenders).To(Equal(int64(4)))
		Expect(metrics.CacheHits).To(BeNumerically(">=", 2))
	})

	It("reports template misses as errors when no live fallback exists", func(ctx SpecContext) {
		s := testEnv.ReloadRecorded()
		s.Interactions = append(s.Interactions, types.Interaction{
			Request:  types.Request{Method: "DELETE", Path: "/api/carts/9"},
			Response: types.Response{StatusCode: 204},
		})

		result, err := v.Engine.Replay(ctx, s, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Summary.Errors).To(Equal(1))
		last := result.InteractionResults[2]
		Expect(last.Error).To(ContainSubstring("no template route matched"))

		By("Verifying the summary invariant holds with errors present")
		sum := result.Summary
		Expect(sum.Compatible + sum.Incompatible + sum.Errors).To(Equal(sum.Total))
	})
})
