package acceptance_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/replayproof/engine/internal/contract"
	"github.com/replayproof/engine/internal/replay"
	"github.com/replayproof/engine/pkg/types"
)

var _ = Describe("Comparison modes and replay filters", Serial, func() {
	newContractVerifier := func(mode types.ComparisonMode) *Verifier {
		v := testEnv.NewVerifier(nil, mode, replay.Options{UseDynamicResponses: true})
		_, err := contract.NewImporter(v.Resolver, testEnv.Logger).
			ImportFile(testEnv.WriteContract())
		Expect(err).NotTo(HaveOccurred())
		return v
	}

	It("counts identifier churn as effective changes under strict mode", func(ctx SpecContext) {
		result, err := newContractVerifier(types.ModeStrict).
			Engine.Replay(ctx, testEnv.Recorded, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(result.ComparisonMode).To(Equal(types.ModeStrict))
		Expect(result.Summary.ToleratedChanges).To(BeZero())
		// The rendered uuid and "now" timestamp differ from the recording.
		Expect(result.Summary.EffectiveChanges).To(BeNumerically(">=", 2))
		Expect(result.Summary.Compatible).To(BeZero())
		Expect(result.Summary.CompatibilityScore).To(BeNumerically("<", 100))
	})

	It("absorbs the same churn under tolerant mode", func(ctx SpecContext) {
		result, err := newContractVerifier(types.ModeTolerant).
			Engine.Replay(ctx, testEnv.Recorded, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Summary.EffectiveChanges).To(BeZero())
		Expect(result.Summary.ToleratedChanges).To(BeNumerically(">=", 2))
		Expect(result.Summary.EffectiveCompatibilityScore).To(BeNumerically("==", 100))
	})

	It("replays only the filtered subset", func(ctx SpecContext) {
		v := newContractVerifier(types.ModeDefault)
		filter := &replay.Filter{Methods: []string{"GET"}}

		result, err := v.Engine.Replay(ctx, testEnv.Recorded, filter)
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Summary.Total).To(Equal(1))
		Expect(result.InteractionResults[0].Method).To(Equal("GET"))
		Expect(result.Filter).To(ContainSubstring("methods=GET"))
		Expect(result.FilteredStats).NotTo(BeNil())
		Expect(result.FilteredStats.OriginalCount).To(Equal(2))
		Expect(result.FilteredStats.FilteredCount).To(Equal(1))
	})

	It("returns an empty summary when the filter excludes everything", func(ctx SpecContext) {
		v := newContractVerifier(types.ModeDefault)
		filter := &replay.Filter{Tags: []string{"no-such-tag"}}

		result, err := v.Engine.Replay(ctx, testEnv.Recorded, filter)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Summary.Total).To(BeZero())
		Expect(result.InteractionResults).To(BeEmpty())
	})
})
