package feed

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/chosenoffset/measure/pkg/units"
	"github.com/chosenoffset/measure/pkg/units/actions"
)

type fixture struct {
	ft, yd, s, min *units.Unit
	mph            *units.Unit
}

func newFixture() fixture {
	ft := units.NewBase("ft")
	s := units.NewBase("s")
	return fixture{
		ft:  ft,
		yd:  units.Must(ft.MulScalar(3)).Named("yd"),
		s:   s,
		min: units.Must(s.MulScalar(60)).Named("min"),
		mph: ft.Div(s).Named("ft/s"),
	}
}

func newTestServer(opts ...Option) *Server {
	logger, _ := test.NewNullLogger()
	return NewServer(append([]Option{WithLogger(logger)}, opts...)...)
}

func TestFeedServer(t *testing.T) {
	t.Run("Channels", testChannels)
	t.Run("PublishConverts", testPublishConverts)
	t.Run("PublishRejects", testPublishRejects)
	t.Run("PublishNonFinite", testPublishNonFinite)
	t.Run("HistoryRing", testHistoryRing)
	t.Run("HTTP", testHTTP)
	t.Run("WebSocket", testWebSocket)
}

func testChannels(t *testing.T) {
	g := NewWithT(t)
	f := newFixture()
	s := newTestServer()

	g.Expect(s.AddChannel("distance", f.yd)).To(Succeed())
	g.Expect(s.AddChannel("duration", f.min)).To(Succeed())

	err := s.AddChannel("distance", f.ft)
	g.Expect(errors.Is(err, ErrDuplicateChannel)).To(BeTrue())
	g.Expect(errors.Is(s.AddChannel("", f.ft), ErrInvalidChannel)).To(BeTrue())
	g.Expect(errors.Is(s.AddChannel("nothing", nil), ErrInvalidChannel)).To(BeTrue())

	channels := s.Channels()
	g.Expect(channels).To(HaveLen(2))
	g.Expect(channels[0].Name).To(Equal("distance"))
	g.Expect(channels[1].Name).To(Equal("duration"))
}

func testPublishConverts(t *testing.T) {
	g := NewWithT(t)
	f := newFixture()

	var seen []actions.Action
	registry := actions.NewActionRegistry()
	registry.RegisterHandler(actions.ConvertedAction, actions.HandlerFunc(func(a actions.Action) error {
		seen = append(seen, a)
		return nil
	}))

	s := newTestServer(WithActions(registry))
	g.Expect(s.AddChannel("distance", f.yd)).To(Succeed())

	reading, err := s.Publish("distance", "probe-1", units.New(9, f.ft))
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(reading.Quantity).To(Equal(3.0))
	g.Expect(reading.Unit).To(Equal("yd"))
	g.Expect(reading.Text).To(Equal("3.0 yd"))
	g.Expect(reading.Source).To(Equal("probe-1"))
	g.Expect(reading.Measure().Unit()).To(BeIdenticalTo(f.yd))

	g.Expect(seen).To(HaveLen(1))
	g.Expect(seen[0].Channel).To(Equal("distance"))
	g.Expect(s.conversions.GetStats().Converted).To(Equal(int64(1)))

	_, err = s.Publish("nowhere", "", units.New(1, f.ft))
	g.Expect(errors.Is(err, ErrUnknownChannel)).To(BeTrue())
}

func testPublishRejects(t *testing.T) {
	g := NewWithT(t)
	f := newFixture()

	logger, hook := test.NewNullLogger()
	registry := actions.NewActionRegistry()
	registry.RegisterHandler(actions.MismatchAction, actions.NewLogHandler(logger))

	s := newTestServer(WithActions(registry))
	g.Expect(s.AddChannel("distance", f.yd)).To(Succeed())

	_, err := s.Publish("distance", "probe-1", units.New(5, f.s))
	g.Expect(errors.Is(err, units.ErrUnitMismatch)).To(BeTrue())

	var mismatch *units.MismatchError
	g.Expect(errors.As(err, &mismatch)).To(BeTrue())
	g.Expect(mismatch.Left).To(BeIdenticalTo(f.s))
	g.Expect(mismatch.Right).To(BeIdenticalTo(f.yd))

	history, err := s.History("distance", 0)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(history).To(BeEmpty())
	g.Expect(s.conversions.GetStats().Rejected).To(Equal(int64(1)))

	g.Expect(hook.LastEntry()).NotTo(BeNil())
	g.Expect(hook.LastEntry().Level).To(Equal(logrus.WarnLevel))
	g.Expect(hook.LastEntry().Message).To(Equal("rejected 5.0 s"))
}

func testPublishNonFinite(t *testing.T) {
	g := NewWithT(t)
	f := newFixture()
	s := newTestServer()
	g.Expect(s.AddChannel("distance", f.ft)).To(Succeed())

	_, err := s.Publish("distance", "", units.New(math.Inf(1), f.ft))
	g.Expect(errors.Is(err, ErrNonFinite)).To(BeTrue())
	_, err = s.Publish("distance", "", units.New(math.NaN(), f.ft))
	g.Expect(errors.Is(err, ErrNonFinite)).To(BeTrue())

	// finite going in, infinite once converted
	huge := units.Must(f.ft.MulScalar(1e10))
	_, err = s.Publish("distance", "", units.New(1e308, huge))
	g.Expect(errors.Is(err, ErrNonFinite)).To(BeTrue())

	history, err := s.History("distance", 0)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(history).To(BeEmpty())
	g.Expect(s.conversions.GetStats().Converted).To(BeZero())

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer s.Stop()

	resp, err := http.Get(ts.URL + "/api/history?channel=distance")
	g.Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	g.Expect(resp.StatusCode).To(Equal(http.StatusOK))

	var body struct {
		Status string    `json:"status"`
		Data   []Reading `json:"data"`
	}
	g.Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
	g.Expect(body.Status).To(Equal("ok"))
	g.Expect(body.Data).To(BeEmpty())
}

func testHistoryRing(t *testing.T) {
	g := NewWithT(t)
	f := newFixture()
	s := newTestServer(WithHistorySize(3))
	g.Expect(s.AddChannel("distance", f.ft)).To(Succeed())

	for i := 1; i <= 5; i++ {
		_, err := s.Publish("distance", "", units.New(float64(i), f.ft))
		g.Expect(err).NotTo(HaveOccurred())
	}

	history, err := s.History("distance", 0)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(quantities(history)).To(Equal([]float64{3, 4, 5}))

	history, err = s.History("distance", 2)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(quantities(history)).To(Equal([]float64{4, 5}))

	_, err = s.History("missing", 1)
	g.Expect(errors.Is(err, ErrUnknownChannel)).To(BeTrue())
}

func quantities(readings []Reading) []float64 {
	out := make([]float64, len(readings))
	for i, r := range readings {
		out[i] = r.Quantity
	}
	return out
}

func testHTTP(t *testing.T) {
	g := NewWithT(t)
	f := newFixture()
	s := newTestServer()
	defer s.Stop()
	g.Expect(s.AddChannel("speed", f.mph)).To(Succeed())

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	yardsPerMinute := f.yd.Div(f.min)
	_, err := s.Publish("speed", "", units.New(200, yardsPerMinute))
	g.Expect(err).NotTo(HaveOccurred())

	var channels struct {
		Status string        `json:"status"`
		Data   []channelInfo `json:"data"`
	}
	getJSON(g, ts.URL+"/api/channels", http.StatusOK, &channels)
	g.Expect(channels.Data).To(ConsistOf(channelInfo{Name: "speed", Unit: "ft/s", Scale: 1}))

	var history struct {
		Data []Reading `json:"data"`
	}
	getJSON(g, ts.URL+"/api/history?channel=speed&limit=10", http.StatusOK, &history)
	g.Expect(history.Data).To(HaveLen(1))
	g.Expect(history.Data[0].Quantity).To(BeNumerically("~", 10, 1e-12))
	g.Expect(history.Data[0].Unit).To(Equal("ft/s"))

	getJSON(g, ts.URL+"/api/history?channel=other", http.StatusNotFound, nil)
	getJSON(g, ts.URL+"/api/history", http.StatusBadRequest, nil)
	getJSON(g, ts.URL+"/api/history?channel=speed&limit=abc", http.StatusBadRequest, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	g.Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(string(body)).To(ContainSubstring(`measure_conversions_total{channel="speed"} 1`))
	g.Expect(string(body)).To(ContainSubstring(`measure_http_requests_total{code="404",handler="history"} 1`))
}

func getJSON(g *WithT, url string, status int, into interface{}) {
	resp, err := http.Get(url)
	g.Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	g.Expect(resp.StatusCode).To(Equal(status))
	if into != nil {
		g.Expect(json.NewDecoder(resp.Body).Decode(into)).To(Succeed())
	}
}

func testWebSocket(t *testing.T) {
	g := NewWithT(t)
	f := newFixture()
	s := newTestServer()
	g.Expect(s.AddChannel("distance", f.ft)).To(Succeed())

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer s.Stop()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	g.Expect(err).NotTo(HaveOccurred())
	defer conn.Close()

	g.Eventually(func() int {
		s.clientsMutex.RLock()
		defer s.clientsMutex.RUnlock()
		return len(s.clients)
	}).Should(Equal(1))

	_, err = s.Publish("distance", "probe", units.New(1, f.yd))
	g.Expect(err).NotTo(HaveOccurred())
	_, err = s.Publish("distance", "probe", units.New(1, f.s))
	g.Expect(err).To(HaveOccurred())

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var accepted struct {
		Type string  `json:"type"`
		Data Reading `json:"data"`
	}
	g.Expect(conn.ReadJSON(&accepted)).To(Succeed())
	g.Expect(accepted.Type).To(Equal("reading"))
	g.Expect(accepted.Data.Text).To(Equal("3.0 ft"))

	var rejected struct {
		Type string    `json:"type"`
		Data Rejection `json:"data"`
	}
	g.Expect(conn.ReadJSON(&rejected)).To(Succeed())
	g.Expect(rejected.Type).To(Equal("rejected"))
	g.Expect(rejected.Data.Given).To(Equal("1.0 s"))
	g.Expect(rejected.Data.Error).To(ContainSubstring("unit mismatch (s vs ft)"))
}

func TestStartStop(t *testing.T) {
	t.Run("StopWhileStarting", func(t *testing.T) {
		g := NewWithT(t)
		s := newTestServer(WithPort(0))

		done := make(chan error, 1)
		go func() { done <- s.Start() }()
		g.Expect(s.Stop()).To(Succeed())
		g.Eventually(done, 2*time.Second).Should(Receive(BeNil()))
	})

	t.Run("StopBeforeStart", func(t *testing.T) {
		g := NewWithT(t)
		s := newTestServer(WithPort(0))
		g.Expect(s.Stop()).To(Succeed())

		done := make(chan error, 1)
		go func() { done <- s.Start() }()
		g.Eventually(done, 2*time.Second).Should(Receive(BeNil()))
	})
}
