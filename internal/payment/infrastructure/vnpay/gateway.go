package vnpay

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/convenience-store/internal/payment/domain"
	"github.com/dmehra2102/convenience-store/pkg/apperr"
	"github.com/dmehra2102/convenience-store/pkg/config"
	"github.com/dmehra2102/convenience-store/pkg/signature"
)

const (
	zoneName    = "Asia/Ho_Chi_Minh"
	stampLayout = "20060102150405"
	expireAfter = 15 * time.Minute
	minorDigits = 2
	defaultIP   = "127.0.0.1"

	FieldSecureHash     = "vnp_SecureHash"
	FieldSecureHashType = "vnp_SecureHashType"
	FieldTxnRef         = "vnp_TxnRef"
	FieldAmount         = "vnp_Amount"
	FieldResponseCode   = "vnp_ResponseCode"
	FieldTxnStatus      = "vnp_TransactionStatus"
	FieldBankCode       = "vnp_BankCode"
	FieldPayDate        = "vnp_PayDate"

	codeSuccess  = "00"
	codeCanceled = "24"
)

type Gateway struct {
	cfg   config.VNPay
	codec *signature.Codec
	loc   *time.Location
}

func New(cfg config.VNPay) (*Gateway, error) {
	codec, err := signature.New(cfg.HashSecret)
	if err != nil {
		return nil, fmt.Errorf("vnpay: %w", err)
	}
	loc, err := time.LoadLocation(zoneName)
	if err != nil {
		return nil, fmt.Errorf("vnpay: load %s: %w", zoneName, err)
	}
	return &Gateway{cfg: cfg, codec: codec, loc: loc}, nil
}

func (g *Gateway) Provider() domain.Provider { return domain.ProviderVNPay }

func (g *Gateway) Currency() string { return g.cfg.CurrCode }

// PaymentURL builds the signed redirect to the hosted payment page.
func (g *Gateway) PaymentURL(c domain.Checkout) (string, error) {
	if !c.Amount.Shift(minorDigits).IsInteger() {
		return "", apperr.Paymentf("Amount has more than %d decimal places", minorDigits)
	}
	ip := strings.TrimSpace(c.ClientIP)
	if ip == "" {
		ip = defaultIP
	}
	at := c.At.In(g.loc)

	params := map[string]string{
		"vnp_Version":    g.cfg.Version,
		"vnp_Command":    g.cfg.Command,
		"vnp_TmnCode":    g.cfg.TmnCode,
		FieldTxnRef:      c.TxnRef,
		"vnp_OrderInfo":  "Payment for order " + c.OrderCode,
		"vnp_OrderType":  "other",
		FieldAmount:      MinorAmount(c.Amount),
		"vnp_CurrCode":   g.cfg.CurrCode,
		"vnp_Locale":     g.cfg.Locale,
		"vnp_ReturnUrl":  g.cfg.ReturnURL,
		"vnp_IpAddr":     ip,
		"vnp_CreateDate": at.Format(stampLayout),
		"vnp_ExpireDate": at.Add(expireAfter).Format(stampLayout),
	}
	return g.cfg.PayURL + "?" + signature.EncodeQuery(params) + "&" + FieldSecureHash + "=" + g.codec.Sign(params), nil
}

func (g *Gateway) ParseCallback(params map[string]string) (domain.Callback, error) {
	if !g.codec.Verify(params, FieldSecureHash, FieldSecureHashType) {
		return domain.Callback{}, apperr.Paymentf("Invalid VNPAY signature")
	}
	txnRef := strings.TrimSpace(params[FieldTxnRef])
	if txnRef == "" {
		return domain.Callback{}, apperr.Paymentf("Missing transaction reference")
	}

	cb := domain.Callback{
		TxnRef:      txnRef,
		AmountMinor: params[FieldAmount],
		MinorDigits: minorDigits,
		Outcome:     Outcome(params[FieldResponseCode], params[FieldTxnStatus]),
		BankCode:    strings.TrimSpace(params[FieldBankCode]),
		RawQuery:    rawQuery(params),
	}
	if raw := strings.TrimSpace(params[FieldPayDate]); raw != "" {
		t, err := time.ParseInLocation(stampLayout, raw, g.loc)
		if err != nil {
			return domain.Callback{}, apperr.Wrap(apperr.KindPayment, err, "Invalid pay date")
		}
		cb.PayDate = &t
	}
	return cb, nil
}

// Outcome maps the provider response and transaction codes to a payment
// status.
func Outcome(responseCode, txnStatus string) domain.Status {
	responseCode = strings.TrimSpace(responseCode)
	txnStatus = strings.TrimSpace(txnStatus)
	switch {
	case responseCode == codeSuccess && (txnStatus == "" || txnStatus == codeSuccess):
		return domain.StatusPaid
	case responseCode == codeCanceled:
		return domain.StatusCanceled
	default:
		return domain.StatusFailed
	}
}

// MinorAmount is the provider wire form of amount.
func MinorAmount(amount decimal.Decimal) string {
	return amount.Shift(minorDigits).StringFixed(0)
}

// rawQuery keeps every received field, blanks included, for the audit trail.
func rawQuery(params map[string]string) string {
	var b strings.Builder
	for i, k := range slices.Sorted(maps.Keys(params)) {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k + "=" + params[k])
	}
	return b.String()
}
