package orders

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

const (
	OrderCodePrefix  = "SSB-"
	TopupCodePrefix  = "TOPUP-"
	InviteSlotPrefix = "INVITE_SLOT_"

	defaultCategory = "Produk"
	base36          = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NewOrderCode: SSB-YYYYMMDD-XXXXXX (tanggal UTC + 6 char base36).
func NewOrderCode(now time.Time) string {
	return OrderCodePrefix + datedSuffix(now)
}

func NewTopupCode(now time.Time) string {
	return TopupCodePrefix + datedSuffix(now)
}

// KindOfCode menebak tabel dari prefix kode (webhook hanya membawa order_id).
func KindOfCode(code string) Kind {
	if strings.HasPrefix(code, TopupCodePrefix) {
		return KindTopup
	}
	return KindOrder
}

func datedSuffix(now time.Time) string {
	var b strings.Builder
	b.WriteString(now.UTC().Format("20060102"))
	b.WriteByte('-')
	for i := 0; i < 6; i++ {
		b.WriteByte(base36[rand.IntN(len(base36))])
	}
	return b.String()
}

// NewInviteSlotCode: timestamp+random+index supaya unik dalam satu batch insert.
func NewInviteSlotCode(now time.Time, i int) string {
	return fmt.Sprintf("%s%d_%d_%d", InviteSlotPrefix, now.UnixMilli(), rand.IntN(99999), i)
}

// ComposeName menggabungkan kategori dan judul: "kategori | judul".
func ComposeName(category, title string) string {
	return strings.TrimSpace(category) + " | " + strings.TrimSpace(title)
}

func splitName(name string) []string {
	raw := strings.Split(name, "|")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func CategoryFromName(name string) string {
	if parts := splitName(name); len(parts) >= 2 {
		return parts[0]
	}
	return defaultCategory
}

func TitleFromName(name string) string {
	if parts := splitName(name); len(parts) >= 2 {
		return strings.Join(parts[1:], " | ")
	}
	return name
}
