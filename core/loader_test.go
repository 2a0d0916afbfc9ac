package core

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/signalsfoundry/rotorcraft-catalog/catalog"
	"github.com/signalsfoundry/rotorcraft-catalog/curve"
	"github.com/signalsfoundry/rotorcraft-catalog/internal/logging"
	"github.com/signalsfoundry/rotorcraft-catalog/model"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeRecorder struct {
	builds     int
	collisions int
	lastErr    error
	counts     [4]int
}

func (r *fakeRecorder) ObserveBuild(_ time.Duration, collisions int, err error) {
	r.builds++
	r.collisions += collisions
	r.lastErr = err
}

func (r *fakeRecorder) SetCatalogCounts(p, m, b, f int) {
	r.counts = [4]int{p, m, b, f}
}

func openFixture(name string) *os.File {
	f, err := os.Open("testdata/" + name)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(f.Close)
	return f
}

func fixtures() (*Manifest, *Bundle) {
	m, err := DecodeManifest(openFixture("manifest.yaml"))
	Expect(err).NotTo(HaveOccurred())
	src, err := NewBundleSource(openFixture("bundle.json"))
	Expect(err).NotTo(HaveOccurred())
	return m, src
}

var _ = Describe("LoadCatalog", func() {
	var (
		ctx      context.Context
		manifest *Manifest
		src      *Bundle
	)

	BeforeEach(func() {
		ctx = context.Background()
		manifest, src = fixtures()
	})

	Context("with the sample manifest and bundle", func() {
		var (
			cat     *catalog.Catalog
			summary *LoadSummary
			rec     *fakeRecorder
			logs    *bytes.Buffer
		)

		BeforeEach(func() {
			rec = &fakeRecorder{}
			logs = &bytes.Buffer{}
			log := logging.New(logging.Config{Level: "debug", Format: "json", Output: logs})

			var err error
			cat, summary, err = LoadCatalog(ctx, src, manifest, WithLogger(log), WithMetrics(rec))
			Expect(err).NotTo(HaveOccurred())
		})

		It("merges propeller subsets with the later subset winning", func() {
			Expect(cat.PropellerKeys()).To(Equal([]string{"15x5", "16x5.4", "18x6.1", "26x8.5"}))

			p, err := cat.Propeller("15x5")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Name).To(Equal("T-Motor G15x5 glossy"))
			Expect(p.Weight()).To(Equal(14.0))

			Expect(summary.Collisions).To(HaveLen(1))
			Expect(summary.Collisions[0].Key).To(Equal("15x5"))
			Expect(summary.Collisions[0].Shadowed).To(Equal("polish"))
			Expect(summary.Collisions[0].Winner).To(Equal("glossy"))
			Expect(logs.String()).To(ContainSubstring("propeller key collision"))
		})

		It("keeps motor order and resolves propeller references", func() {
			var names []string
			for _, m := range cat.Motors() {
				names = append(names, m.Name)
			}
			Expect(names).To(Equal([]string{
				"u7v2_kv420_22.2v_15x5cf",
				"u5_kv400_v22.2_15x5cf",
				"u7v2_kv420_22.2v_16x5.4cf",
			}))

			m, err := cat.Motor("u7v2_kv420_22.2v_15x5cf")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Propeller.Key()).To(Equal("15x5"))
			Expect(m.WeightTotal()).To(Equal(299.0 + 14.0))
		})

		It("evaluates hover thrust and current at sample throttles", func() {
			m, err := cat.Motor("u7v2_kv420_22.2v_15x5cf")
			Expect(err).NotTo(HaveOccurred())

			thrust, err := m.HoverThrust(0.5)
			Expect(err).NotTo(HaveOccurred())
			Expect(thrust).To(BeNumerically("~", 1400, 1e-9))

			op, err := m.Hover(0.75)
			Expect(err).NotTo(HaveOccurred())
			Expect(op.Thrust).To(BeNumerically("~", 2300, 1e-9))
			Expect(op.Current).To(BeNumerically("~", 11, 1e-9))
		})

		It("applies per-curve policies from the manifest", func() {
			m, err := cat.Motor("u5_kv400_v22.2_15x5cf")
			Expect(err).NotTo(HaveOccurred())
			thrust, err := m.HoverThrust(0.1)
			Expect(err).NotTo(HaveOccurred())
			Expect(thrust).To(Equal(500.0))

			strict, err := cat.Motor("u7v2_kv420_22.2v_15x5cf")
			Expect(err).NotTo(HaveOccurred())
			_, err = strict.HoverThrust(1.2)
			Expect(err).To(MatchError(curve.ErrOutOfDomain))
			Expect(catalog.IsUsage(err)).To(BeTrue())

			linear, err := cat.Motor("u7v2_kv420_22.2v_16x5.4cf")
			Expect(err).NotTo(HaveOccurred())
			current, err := linear.HoverCurrent(0.75)
			Expect(err).NotTo(HaveOccurred())
			Expect(current).To(BeNumerically("~", 15, 1e-9))
		})

		It("indexes battery groups by family and cell label", func() {
			Expect(cat.BatteryFamilies()).To(Equal([]string{"hp-g8-c30", "hp-g8-c45"}))
			Expect(cat.BatteryLabels("hp-g8-c45")).To(Equal([]string{"2S", "3S"}))

			g, err := cat.BatteryGroup("hp-g8-c45", "3S")
			Expect(err).NotTo(HaveOccurred())
			Expect(g.CRate).To(Equal(45.0))
			Expect(g.Batteries).To(HaveLen(2))
			Expect(g.Batteries[0].Name).To(Equal("HP-G8-45C-3S-2200"))

			bat, ok := g.Battery("HP-G8-45C-3S-5000")
			Expect(ok).To(BeTrue())
			Expect(bat.TotalWeight()).To(Equal(375.0))

			w, err := g.ExpectedWeight(2200)
			Expect(err).NotTo(HaveOccurred())
			Expect(w).To(BeNumerically("~", 175, 1e-9))

			six, err := cat.BatteryGroup("hp-g8-c30", "6S")
			Expect(err).NotTo(HaveOccurred())
			w, err = six.ExpectedWeight(22000)
			Expect(err).NotTo(HaveOccurred())
			Expect(w).To(BeNumerically("~", 2670, 1e-9))
		})

		It("resolves the quad frame for a propeller diameter", func() {
			frame, err := cat.Frame(catalog.DefaultFrame)
			Expect(err).NotTo(HaveOccurred())

			sel := model.NewFrameSelection(frame)
			_, err = sel.Weight()
			Expect(err).To(MatchError(model.ErrInvalidState))

			_, err = sel.Select(20)
			Expect(err).NotTo(HaveOccurred())
			w, err := sel.Weight()
			Expect(err).NotTo(HaveOccurred())
			Expect(w).To(BeNumerically("~", 1600, 1e-9))
			base, err := sel.Base()
			Expect(err).NotTo(HaveOccurred())
			Expect(base).To(BeNumerically("~", 560, 1e-9))
		})

		It("reports the summary and metrics", func() {
			Expect(summary.Subsets).To(Equal([]string{"polish", "glossy"}))
			Expect(summary.Propellers).To(Equal(4))
			Expect(summary.Motors).To(Equal(3))
			Expect(summary.BatteryGroups).To(Equal(3))
			Expect(summary.Frames).To(Equal(1))
			Expect(summary.TablesFetched).To(Equal(5))
			Expect(summary.CurvesFetched).To(Equal(16))

			Expect(rec.builds).To(Equal(1))
			Expect(rec.collisions).To(Equal(1))
			Expect(rec.lastErr).NotTo(HaveOccurred())
			Expect(rec.counts).To(Equal([4]int{4, 3, 3, 1}))
		})
	})

	It("fails eagerly when a motor references a missing propeller", func() {
		manifest.PropellerSubsets = manifest.PropellerSubsets[:1]
		manifest.Motors = append(manifest.Motors, MotorRef{
			Name: "u7v2_kv280_24v_18x6.1cf", Voltage: 24, KV: 280, Weight: 299,
			Propeller: "18x6.1",
			Thrust:    CurveRef{ID: "spl_u7_15x5_thrust"},
			Current:   CurveRef{ID: "spl_u7_15x5_current"},
		})

		rec := &fakeRecorder{}
		cat, _, err := LoadCatalog(ctx, src, manifest, WithMetrics(rec))
		Expect(cat).To(BeNil())
		Expect(err).To(MatchError(catalog.ErrLookup))
		Expect(err.Error()).To(ContainSubstring(`"18x6.1"`))
		Expect(catalog.IsIntegrity(err)).To(BeTrue())
		Expect(rec.lastErr).To(HaveOccurred())
	})

	It("joins every missing source object into one error", func() {
		manifest.PropellerSubsets = append(manifest.PropellerSubsets, SubsetRef{Name: "carbon", Table: "sbt_carbon"})
		manifest.Frames[0].PlateThickness = CurveRef{ID: "spl_missing"}

		_, _, err := LoadCatalog(ctx, src, manifest)
		Expect(err).To(MatchError(ErrSourceNotFound))
		Expect(err).To(MatchError(catalog.ErrLookup))
		Expect(err.Error()).To(And(ContainSubstring("sbt_carbon"), ContainSubstring("spl_missing")))
	})

	It("rejects malformed curve data", func() {
		src.AddCurve("spl_u7_15x5_thrust", []curve.Point{{X: 0, Y: 0}, {X: 0, Y: 1}})
		_, _, err := LoadCatalog(ctx, src, manifest)
		Expect(err).To(MatchError(curve.ErrMalformedCurveData))
		Expect(err.Error()).To(ContainSubstring("spl_u7_15x5_thrust"))
	})

	It("rejects rows whose length does not match the header", func() {
		src.AddTable("sbt_glossy", Table{
			Columns: []string{"name", "diameter", "width", "blades_num", "blade_weight", "thrust_limit"},
			Rows:    [][]any{{"short", 15, 5}},
		})
		_, _, err := LoadCatalog(ctx, src, manifest)
		Expect(err).To(MatchError(model.ErrFieldCount))
	})

	It("loads propeller rows delivered as protobuf structs", func() {
		row, err := structpb.NewStruct(map[string]any{
			"name": "carbon 18x6.1", "diameter": 18, "width": 6.1,
			"blades_num": 3, "blade_weight": 12, "thrust_limit": 5000,
		})
		Expect(err).NotTo(HaveOccurred())
		src.AddStructTable("sbt_carbon", []*structpb.Struct{row})
		manifest.PropellerSubsets = append(manifest.PropellerSubsets, SubsetRef{Name: "carbon", Table: "sbt_carbon"})

		cat, summary, err := LoadCatalog(ctx, src, manifest)
		Expect(err).NotTo(HaveOccurred())
		p, err := cat.Propeller("18x6.1")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name).To(Equal("carbon 18x6.1"))
		Expect(p.Weight()).To(Equal(36.0))
		Expect(summary.Collisions).To(HaveLen(2))
	})

	It("uses the default policy for references without one", func() {
		cat, _, err := LoadCatalog(ctx, src, manifest, WithDefaultPolicy(curve.Clamp))
		Expect(err).NotTo(HaveOccurred())
		m, err := cat.Motor("u7v2_kv420_22.2v_15x5cf")
		Expect(err).NotTo(HaveOccurred())
		thrust, err := m.HoverThrust(1.5)
		Expect(err).NotTo(HaveOccurred())
		Expect(thrust).To(Equal(3200.0))
	})

	It("stops on context cancellation", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, _, err := LoadCatalog(cctx, src, manifest)
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	})

	It("rejects a nil source or manifest", func() {
		_, _, err := LoadCatalog(ctx, nil, manifest)
		Expect(err).To(HaveOccurred())
		_, _, err = LoadCatalog(ctx, src, nil)
		Expect(err).To(MatchError(ErrInvalidManifest))
	})
})

var _ = Describe("DecodeManifest", func() {
	It("normalises propeller keys", func() {
		m, err := DecodeManifest(strings.NewReader(`
motors:
  - name: u7v2_kv280_24v_20x6cf
    propeller: 20x6.0
    thrust_vs_throttle: a
    current_vs_throttle: b
`))
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Motors[0].Propeller).To(Equal("20x6"))
	})

	It("accepts JSON", func() {
		m, err := DecodeManifest(strings.NewReader(`{"propeller_subsets": ["sbt_a", {"name": "b", "table": "sbt_b"}]}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(m.PropellerSubsets).To(Equal([]SubsetRef{{Name: "sbt_a", Table: "sbt_a"}, {Name: "b", Table: "sbt_b"}}))
	})

	DescribeTable("rejects invalid manifests",
		func(doc, detail string) {
			_, err := DecodeManifest(strings.NewReader(doc))
			Expect(err).To(MatchError(ErrInvalidManifest))
			Expect(err.Error()).To(ContainSubstring(detail))
		},
		Entry("empty document", "", "empty document"),
		Entry("unknown field", "propellers: []", "decode failed"),
		Entry("bad propeller key", `
motors:
  - name: m
    propeller: fifteen
    thrust_vs_throttle: a
    current_vs_throttle: b
`, "fifteen"),
		Entry("missing curve id", `
motors:
  - name: m
    propeller: 15x5
    thrust_vs_throttle: a
`, "curve id is empty"),
		Entry("unknown policy", `
motors:
  - name: m
    propeller: 15x5
    thrust_vs_throttle: {id: a, policy: wrap}
    current_vs_throttle: b
`, "wrap"),
		Entry("label mismatch", `
battery_families:
  hp-g8-c45:
    3S: {c_rate: 45, n_cells: 4, table: t, weight_vs_capacity: w}
`, "label does not match"),
		Entry("frame without curves", `
frames:
  - name: quad
`, "mass_vs_propd"),
	)
})

var _ = Describe("Bundle", func() {
	It("reports unknown IDs", func() {
		b := NewBundle()
		_, err := b.Table(context.Background(), "sbt_x")
		Expect(err).To(MatchError(ErrSourceNotFound))
		_, err = b.Curve(context.Background(), "spl_x")
		Expect(err).To(MatchError(ErrSourceNotFound))
	})

	It("returns copies of curve samples", func() {
		b := NewBundle()
		b.AddCurve("c", []curve.Point{{X: 0, Y: 0}, {X: 1, Y: 1}})
		pts, err := b.Curve(context.Background(), "c")
		Expect(err).NotTo(HaveOccurred())
		pts[0].Y = 42
		again, _ := b.Curve(context.Background(), "c")
		Expect(again[0].Y).To(Equal(0.0))
	})

	It("rejects curves with mismatched x and y lengths", func() {
		_, err := NewBundleSource(strings.NewReader(`{"curves": {"c": {"x": [0, 1], "y": [0]}}}`))
		Expect(err).To(MatchError(curve.ErrMalformedCurveData))
	})

	It("converts named and struct rows into records", func() {
		t := Table{Named: NamedTable{{"Name": "a", "Capacity": "1300"}}}
		recs, err := t.Records("battery")
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(HaveLen(1))
		c, err := recs[0].Float("capacity")
		Expect(err).NotTo(HaveOccurred())
		Expect(c).To(Equal(1300.0))

		s, err := structpb.NewStruct(map[string]any{"name": "b"})
		Expect(err).NotTo(HaveOccurred())
		recs = StructRows("battery", []*structpb.Struct{s, nil})
		Expect(recs).To(HaveLen(2))
		Expect(recs[1].Has("name")).To(BeFalse())
	})
})
