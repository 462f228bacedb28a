package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/okian/geocapture/internal/domain/acquisition"
	"github.com/okian/geocapture/internal/domain/model"
)

type place struct {
	city, region, country, timezone string
	lat, lon                        float64
}

var places = []place{
	{"New York", "New York", "United States", "America/New_York", 40.7128, -74.0060},
	{"Lisbon", "Lisbon", "Portugal", "Europe/Lisbon", 38.7223, -9.1393},
	{"Nairobi", "Nairobi County", "Kenya", "Africa/Nairobi", -1.2921, 36.8219},
	{"Osaka", "Osaka", "Japan", "Asia/Tokyo", 34.6937, 135.5023},
	{"Santiago", "Santiago Metropolitan", "Chile", "America/Santiago", -33.4489, -70.6693},
	{"Perth", "Western Australia", "Australia", "Australia/Perth", -31.9505, 115.8605},
}

var agents = []acquisition.ClientInfo{
	{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		Platform:  "Win32", Language: "en-US", Screen: "1920x1080",
	},
	{
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1",
		Platform:  "iPhone", Language: "pt-PT", Screen: "390x844",
	},
	{
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
		Platform:  "Linux x86_64", Language: "ja-JP", Screen: "2560x1440",
	},
}

// subject is one simulated visitor: a home place, a network address and a
// decision about the consent prompt.
type subject struct {
	addr    string
	home    place
	client  acquisition.ClientInfo
	grant   bool
	denial  int
	jitterA float64
	jitterB float64
}

func newSubject(seed uint64, index int, grantRatio float64) subject {
	r := rand.New(rand.NewPCG(seed, uint64(index)))
	return subject{
		addr:    fmt.Sprintf("10.%d.%d.%d", (index>>16)&0xff, (index>>8)&0xff, index&0xff),
		home:    places[r.IntN(len(places))],
		client:  agents[r.IntN(len(agents))],
		grant:   r.Float64() < grantRatio,
		denial:  acquisition.CodePermissionDenied + r.IntN(3),
		jitterA: r.Float64()*0.02 - 0.01,
		jitterB: r.Float64()*0.02 - 0.01,
	}
}

// syntheticLookup answers like a coarse provider without leaving the process.
type syntheticLookup struct {
	s subject
}

func (l syntheticLookup) Lookup(ctx context.Context) (acquisition.LookupResult, error) {
	if err := ctx.Err(); err != nil {
		return acquisition.LookupResult{}, fmt.Errorf("%w: %v", acquisition.ErrLookupUnavailable, err)
	}
	return acquisition.LookupResult{
		Latitude:    l.s.home.lat,
		Longitude:   l.s.home.lon,
		City:        l.s.home.city,
		Region:      l.s.home.region,
		CountryName: l.s.home.country,
		IP:          l.s.addr,
		Org:         "Simulated Transit",
		Timezone:    l.s.home.timezone,
	}, nil
}

// triggeringLookup presses the share control once the coarse lookup has
// answered, as a subject reading the page would.
type triggeringLookup struct {
	next acquisition.CoarseLookup
	flow *acquisition.Flow
}

func (l *triggeringLookup) Lookup(ctx context.Context) (acquisition.LookupResult, error) {
	defer l.flow.Trigger()
	return l.next.Lookup(ctx)
}

// capability answers the precise request with the subject's decision.
type capability struct {
	s subject
}

func (c capability) CurrentPosition(ctx context.Context, _ acquisition.PositionOptions) (acquisition.Position, error) {
	if err := ctx.Err(); err != nil {
		return acquisition.Position{}, err
	}
	if !c.s.grant {
		return acquisition.Position{}, &acquisition.CapabilityError{
			Code:    c.s.denial,
			Message: denialMessage(c.s.denial),
		}
	}
	alt := 12.5
	return acquisition.Position{
		Latitude:  c.s.home.lat + c.s.jitterA,
		Longitude: c.s.home.lon + c.s.jitterB,
		Accuracy:  8 + 40*(c.s.jitterA+0.01),
		Altitude:  &alt,
		Timestamp: time.Now(),
	}, nil
}

func denialMessage(code int) string {
	switch code {
	case acquisition.CodePermissionDenied:
		return "User denied Geolocation"
	case acquisition.CodeTimeout:
		return "Timeout expired"
	}
	return "Position unavailable"
}

// tally counts acknowledged submissions per kind across all flows.
type tally struct {
	coarse, precise, denied, failed atomic.Int64
}

// countingSubmitter records which submissions the server acknowledged.
// A submission outlives the flow that made it so every request the server
// may have recorded is also counted here; the HTTP client timeout bounds it.
type countingSubmitter struct {
	next acquisition.Submitter
	t    *tally
}

func (c countingSubmitter) Submit(ctx context.Context, kind model.Kind, payload map[string]any) error {
	err := c.next.Submit(context.WithoutCancel(ctx), kind, payload)
	if err != nil {
		c.t.failed.Add(1)
		return err
	}
	switch kind {
	case model.KindCoarseLocation:
		c.t.coarse.Add(1)
	case model.KindPreciseLocation:
		c.t.precise.Add(1)
	case model.KindConsentDenied:
		c.t.denied.Add(1)
	}
	return nil
}
