package scraper

import (
	"maps"
	"slices"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/model"
	"google.golang.org/protobuf/proto"

	"github.com/obsidianstack/scalarship/pkg/types"
)

// toRecords flattens one scrape into records for run. Families are visited
// in name order so the output is deterministic.
func toRecords(run string, step int64, scrapedAt time.Time, mfs map[string]*dto.MetricFamily) []types.Record {
	defaultWall := float64(scrapedAt.Unix()) + float64(scrapedAt.Nanosecond())/1e9

	var out []types.Record
	for _, name := range slices.Sorted(maps.Keys(mfs)) {
		mf := mfs[name]
		meta := familyMetadata(mf)
		for _, m := range mf.GetMetric() {
			value, kind := sampleValue(mf.GetType(), m)
			wall := defaultWall
			if m.TimestampMs != nil {
				wall = float64(m.GetTimestampMs()) / 1e3
			}
			out = append(out, types.Record{
				Run:      run,
				Tag:      seriesTag(name, m),
				Step:     step,
				WallTime: wall,
				Value:    value,
				Metadata: meta,
				Kind:     kind,
			})
		}
	}
	return out
}

// seriesTag renders the series identity in the usual name{label="v", ...}
// form with labels sorted.
func seriesTag(name string, m *dto.Metric) string {
	lm := make(model.Metric, len(m.GetLabel())+1)
	lm[model.MetricNameLabel] = model.LabelValue(name)
	for _, lp := range m.GetLabel() {
		lm[model.LabelName(lp.GetName())] = model.LabelValue(lp.GetValue())
	}
	return lm.String()
}

func sampleValue(typ dto.MetricType, m *dto.Metric) (float64, types.Kind) {
	switch typ {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue(), types.KindScalar
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue(), types.KindScalar
	case dto.MetricType_UNTYPED:
		return m.GetUntyped().GetValue(), types.KindScalar
	case dto.MetricType_SUMMARY:
		return float64(m.GetSummary().GetSampleCount()), types.KindNonScalar
	}
	return float64(m.GetHistogram().GetSampleCount()), types.KindNonScalar
}

// familyMetadata encodes the family header without its samples.
func familyMetadata(mf *dto.MetricFamily) []byte {
	b, err := proto.Marshal(&dto.MetricFamily{Name: mf.Name, Help: mf.Help, Type: mf.Type})
	if err != nil {
		return nil
	}
	return b
}
