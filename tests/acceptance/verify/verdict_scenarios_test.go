package acceptance_test

import (
	"fmt"
	"strconv"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/replayproof/engine/internal/replay"
	"github.com/replayproof/engine/internal/route"
	"github.com/replayproof/engine/pkg/types"
)

// singleInteraction builds a one-interaction session for verdict scenarios.
func singleInteraction(method, path string, status int, body any) *types.Session {
	return &types.Session{
		SessionID: "verdict",
		Interactions: []types.Interaction{
			{
				Request: types.Request{Method: method, Path: path},
				Response: types.Response{
					StatusCode: status,
					Headers:    map[string]string{"Content-Type": "application/json"},
					Body:       body,
				},
			},
		},
	}
}

// templateVerifier registers one template route and returns a template-only
// engine for the given mode.
func templateVerifier(mode types.ComparisonMode, pattern, method string, status int, source any) *Verifier {
	v := testEnv.NewVerifier(nil, mode, replay.Options{UseDynamicResponses: true})
	r, err := route.NewRoute(pattern, method, status,
		map[string]string{"Content-Type": "application/json"}, source)
	Expect(err).NotTo(HaveOccurred())
	v.Resolver.Register(r)
	return v
}

var _ = Describe("Field-level verdicts", Serial, func() {
	It("breaks on a removed count field while tolerating the added one", func(ctx SpecContext) {
		s := singleInteraction("GET", "/api/products", 200, map[string]any{
			"products": []any{map[string]any{"id": float64(1)}},
			"count":    float64(1),
		})
		v := templateVerifier(types.ModeDefault, "/api/products", "GET", 200, map[string]any{
			"products": []any{map[string]any{"id": float64(1), "inStock": true}},
		})

		result, err := v.Engine.Replay(ctx, s, nil)
		Expect(err).NotTo(HaveOccurred())

		cmp := result.InteractionResults[0].Comparison
		Expect(cmp.IsCompatible).To(BeFalse())
		Expect(diffPaths(cmp.Differences, types.DiffRemoved)).To(ContainElement("count"))
		Expect(diffPaths(cmp.Differences, types.DiffAdded)).To(ContainElement("products[0].inStock"))
		Expect(result.Summary.CompatibilityScore).To(BeNumerically("==", 0))
	})

	It("reports a renamed timestamp field as a removal even under tolerant mode", func(ctx SpecContext) {
		s := singleInteraction("GET", "/api/orders/1", 200, map[string]any{
			"created": "2023-01-01T12:00:00Z",
		})
		v := templateVerifier(types.ModeTolerant, "/api/orders/:id", "GET", 200, map[string]any{
			"createdAt": "2023-01-01T12:00:03Z",
		})

		result, err := v.Engine.Replay(ctx, s, nil)
		Expect(err).NotTo(HaveOccurred())

		cmp := result.InteractionResults[0].Comparison
		Expect(cmp.IsCompatible).To(BeFalse())
		Expect(diffPaths(cmp.Differences, types.DiffRemoved)).To(ContainElement("created"))
	})

	It("treats a string-to-object change as breaking in every mode", func(ctx SpecContext) {
		for _, mode := range []types.ComparisonMode{types.ModeDefault, types.ModeStrict, types.ModeTolerant} {
			s := singleInteraction("GET", "/api/products/7", 200, map[string]any{
				"description": "x",
			})
			v := templateVerifier(mode, "/api/products/:id", "GET", 200, map[string]any{
				"description": map[string]any{"short": "x"},
			})

			result, err := v.Engine.Replay(ctx, s, nil)
			Expect(err).NotTo(HaveOccurred())

			cmp := result.InteractionResults[0].Comparison
			Expect(cmp.IsCompatible).To(BeFalse(), "mode %s", mode)
			Expect(cmp.BodyDiffs.TypeChanged).To(Equal(1), "mode %s", mode)
			Expect(cmp.Differences[0].Reason).To(Equal("Type changed from string to object"))
		}
	})

	It("normalizes differing UUIDs into tolerated changes", func(ctx SpecContext) {
		s := singleInteraction("GET", "/api/products/1", 200, map[string]any{
			"id": "550e8400-e29b-41d4-a716-446655440000",
		})
		v := templateVerifier(types.ModeTolerant, "/api/products/:id", "GET", 200, map[string]any{
			"id": "123e4567-e89b-12d3-a456-426614174000",
		})

		result, err := v.Engine.Replay(ctx, s, nil)
		Expect(err).NotTo(HaveOccurred())

		cmp := result.InteractionResults[0].Comparison
		Expect(cmp.IsEffectivelyCompatible).To(BeTrue())
		Expect(cmp.BodyDiffs.Tolerated).To(BeNumerically(">=", 1))
		Expect(result.Summary.EffectiveChanges).To(BeZero())
	})

	It("fails strict mode on a two-second timestamp drift", func(ctx SpecContext) {
		s := singleInteraction("GET", "/api/orders/1", 200, map[string]any{
			"updatedAt": "2023-01-01T12:00:00Z",
		})
		v := templateVerifier(types.ModeStrict, "/api/orders/:id", "GET", 200, map[string]any{
			"updatedAt": "2023-01-01T12:00:02Z",
		})

		result, err := v.Engine.Replay(ctx, s, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Summary.Compatible).To(BeZero())
		Expect(result.Summary.CompatibilityScore).To(BeNumerically("<", 100))
	})

	It("renders path params and helper values into template responses", func(ctx SpecContext) {
		s := singleInteraction("GET", "/api/products/42", 200, map[string]any{
			"id": "42",
		})
		v := templateVerifier(types.ModeDefault, "/api/products/:id", "GET", 200, map[string]any{
			"id":    "{{request.params.id}}",
			"price": "{{random 10 100}}",
		})

		result, err := v.Engine.Replay(ctx, s, nil)
		Expect(err).NotTo(HaveOccurred())

		cmp := result.InteractionResults[0].Comparison
		By("Verifying the rendered id matched the recording exactly")
		Expect(diffPaths(cmp.Differences, types.DiffRemoved)).To(BeEmpty())
		Expect(diffPaths(cmp.Differences, types.DiffModified)).NotTo(ContainElement("id"))

		By("Verifying the rendered price is an integer in range")
		var priceValue string
		for _, d := range cmp.Differences {
			if d.Kind == types.DiffAdded && d.Path == "price" {
				priceValue = fmt.Sprintf("%v", d.New)
			}
		}
		Expect(priceValue).NotTo(BeEmpty())
		n, err := strconv.Atoi(priceValue)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeNumerically(">=", 10))
		Expect(n).To(BeNumerically("<=", 100))
	})
})
