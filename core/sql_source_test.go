package core

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/signalsfoundry/rotorcraft-catalog/curve"
	"github.com/signalsfoundry/rotorcraft-catalog/model"
	"google.golang.org/protobuf/types/known/structpb"
)

var _ = Describe("SQLSource", func() {
	var (
		ctx   context.Context
		store *SQLSource
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		store, err = OpenSQLSource(ctx, ":memory:")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)
	})

	It("serves a catalog imported from a bundle", func() {
		manifest, bundle := fixtures()
		Expect(store.Import(ctx, bundle)).To(Succeed())

		fromBundle, _, err := LoadCatalog(ctx, bundle, manifest)
		Expect(err).NotTo(HaveOccurred())
		fromStore, summary, err := LoadCatalog(ctx, store, manifest)
		Expect(err).NotTo(HaveOccurred())

		Expect(fromStore.Stats()).To(Equal(fromBundle.Stats()))
		Expect(fromStore.PropellerKeys()).To(Equal(fromBundle.PropellerKeys()))
		Expect(summary.Collisions).To(HaveLen(1))

		m, err := fromStore.Motor("u7v2_kv420_22.2v_15x5cf")
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Propeller.Name).To(Equal("T-Motor G15x5 glossy"))
		thrust, err := m.HoverThrust(0.5)
		Expect(err).NotTo(HaveOccurred())
		Expect(thrust).To(BeNumerically("~", 1400, 1e-9))
	})

	It("keeps row and point order", func() {
		Expect(store.PutTable(ctx, "sbt_c45_2s", Table{
			Columns: []string{"name", "capacity"},
			Rows:    [][]any{{"b", 2200}, {"a", 1300}},
		})).To(Succeed())
		t, err := store.Table(ctx, "sbt_c45_2s")
		Expect(err).NotTo(HaveOccurred())
		recs, err := t.Records("battery")
		Expect(err).NotTo(HaveOccurred())
		first, err := recs[0].String(model.FieldName)
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(Equal("b"))

		pts := []curve.Point{{X: 0, Y: 1}, {X: 0.5, Y: 2}, {X: 1, Y: 4}}
		Expect(store.PutCurve(ctx, "spl", pts)).To(Succeed())
		got, err := store.Curve(ctx, "spl")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(pts))
	})

	It("replaces data on a second put", func() {
		Expect(store.PutCurve(ctx, "spl", []curve.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}})).To(Succeed())
		Expect(store.PutCurve(ctx, "spl", []curve.Point{{X: 0, Y: 5}, {X: 1, Y: 6}})).To(Succeed())
		got, err := store.Curve(ctx, "spl")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(2))
		Expect(got[0].Y).To(Equal(5.0))
	})

	It("stores protobuf rows", func() {
		row, err := structpb.NewStruct(map[string]any{"name": "carbon", "diameter": 18})
		Expect(err).NotTo(HaveOccurred())
		Expect(store.PutTable(ctx, "sbt_carbon", Table{Structs: []*structpb.Struct{row}})).To(Succeed())

		t, err := store.Table(ctx, "sbt_carbon")
		Expect(err).NotTo(HaveOccurred())
		recs, err := t.Records("propeller")
		Expect(err).NotTo(HaveOccurred())
		d, err := recs[0].Float(model.FieldDiameter)
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(Equal(18.0))
	})

	It("round-trips a table with no rows", func() {
		Expect(store.PutTable(ctx, "sbt_empty", Table{Columns: []string{"name", "diameter"}})).To(Succeed())

		t, err := store.Table(ctx, "sbt_empty")
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Len()).To(BeZero())
		recs, err := t.Records("propeller")
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(BeEmpty())
	})

	It("reports unknown IDs as not found", func() {
		_, err := store.Table(ctx, "sbt_missing")
		Expect(err).To(MatchError(ErrSourceNotFound))
		_, err = store.Curve(ctx, "spl_missing")
		Expect(err).To(MatchError(ErrSourceNotFound))
	})

	It("rejects rows that do not match the header", func() {
		err := store.PutTable(ctx, "bad", Table{Columns: []string{"a", "b"}, Rows: [][]any{{1}}})
		Expect(err).To(MatchError(model.ErrFieldCount))
	})

	It("persists to a file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "catalog.db")
		s, err := OpenSQLSource(ctx, path)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.PutCurve(ctx, "spl", []curve.Point{{X: 0, Y: 0}, {X: 1, Y: 1}})).To(Succeed())
		Expect(s.Close()).To(Succeed())

		reopened, err := OpenSQLSource(ctx, path)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(reopened.Close)
		got, err := reopened.Curve(ctx, "spl")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(2))
	})
})
