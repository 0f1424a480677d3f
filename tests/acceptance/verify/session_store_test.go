package acceptance_test

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/replayproof/engine/internal/replay"
	"github.com/replayproof/engine/internal/session"
	"github.com/replayproof/engine/pkg/types"
)

var _ = Describe("Session store round trips", Serial, func() {
	It("round-trips the recorded session through a compressed store", func(ctx SpecContext) {
		dir := GinkgoT().TempDir()
		store, err := session.NewFileStore(dir, session.CodecSnappy, testEnv.Logger)
		Expect(err).NotTo(HaveOccurred())

		s := testEnv.ReloadRecorded()
		Expect(store.Save(ctx, s)).To(Succeed())

		entries, err := store.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(ContainElement("acceptance-checkout"))

		reloaded, err := store.Load(ctx, "acceptance-checkout")
		Expect(err).NotTo(HaveOccurred())
		Expect(reloaded.Interactions).To(HaveLen(len(s.Interactions)))
		Expect(reloaded.Interactions[0].RequestHash).To(Equal(s.Interactions[0].RequestHash))
	})

	It("tags a stored session in place and replays the tagged subset", func(ctx SpecContext) {
		dir := GinkgoT().TempDir()
		store, err := session.NewFileStore(dir, session.CodecNone, testEnv.Logger)
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Save(ctx, testEnv.ReloadRecorded())).To(Succeed())

		By("Tagging only the GET interactions")
		tagger := session.NewTagger(testEnv.Logger)
		path := filepath.Join(dir, "acceptance-checkout"+session.ExtJSON)
		modified, err := tagger.TagFile(path,
			&replay.Filter{Methods: []string{"GET"}},
			session.TagChange{Add: []string{"read-only"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(modified).To(Equal(1))

		By("Replaying only the tagged interactions against the live service")
		tagged, err := store.Load(ctx, "acceptance-checkout")
		Expect(err).NotTo(HaveOccurred())

		v := testEnv.NewVerifier(testEnv.LiveClient(), types.ModeDefault, replayOptions())
		result, err := v.Engine.Replay(context.Background(), tagged,
			&replay.Filter{Tags: []string{"read-only"}})
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Summary.Total).To(Equal(1))
		Expect(result.InteractionResults[0].Path).To(Equal("/api/products/42"))
		Expect(result.Summary.Compatible).To(Equal(1))
	})
})
