package redisx

import "time"

const (
	// Lock transaksi aktif per user: store:lock:user:{telegram_id} -> kode order/topup
	KeyUserLock = "store:lock:user:%d"

	// Cooldown cek status manual: store:cooldown:check:{code}
	KeyCheckCooldown = "store:cooldown:check:%s"

	// Referensi pesan UI sementara: list store:ui:{code}
	KeyUIMessages = "store:ui:%s"
)

var (
	// Lock minimal hidup selama ini walau caller meminta TTL lebih kecil.
	TTLLockFloor = 30 * time.Second
	TTLUIFloor   = time.Minute
)
