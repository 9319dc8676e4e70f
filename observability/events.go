package observability

import (
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"frendlend/core/events"
)

// EventMetrics counts committed events and the amounts they move. It is an
// events.Emitter.
type EventMetrics struct {
	emitted   *prometheus.CounterVec
	fees      *prometheus.CounterVec
	principal *prometheus.CounterVec
}

var (
	eventOnce    sync.Once
	eventMetrics *EventMetrics
)

func Events() *EventMetrics {
	eventOnce.Do(func() {
		eventMetrics = &EventMetrics{
			emitted: counterVec("events", "emitted_total",
				"Committed events by type.", "type"),
			fees: counterVec("lending", "fees_charged_total",
				"Processing and protocol fees charged by token and kind, in base units.", "token", "kind"),
			principal: counterVec("lending", "principal_originated_total",
				"Loan principal originated by token, in base units.", "token"),
		}
		prometheus.MustRegister(eventMetrics.emitted, eventMetrics.fees, eventMetrics.principal)
	})
	return eventMetrics
}

func (m *EventMetrics) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	m.emitted.WithLabelValues(evt.EventType()).Inc()
	switch e := evt.(type) {
	case events.LoanOfferAccepted:
		tok := tokenLabel(e.Token)
		m.principal.WithLabelValues(tok).Add(bigToFloat(e.Amount))
		m.addFee(tok, "processing", e.ProcessingFee)
	case events.LoanPayment:
		m.addFee(tokenLabel(e.Token), "protocol", e.ProtocolFee)
	}
}

func (m *EventMetrics) addFee(tok, kind string, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	m.fees.WithLabelValues(tok, kind).Add(bigToFloat(amount))
}

func tokenLabel(tok common.Address) string {
	return strings.ToLower(tok.Hex())
}
