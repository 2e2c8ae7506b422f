package orders

import "errors"

// MaxStockBatch membatasi tambah/hapus invite slot per panggilan.
const MaxStockBatch = 500

var (
	ErrNotFound            = errors.New("not found")
	ErrOutOfStock          = errors.New("stock exhausted")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotPaid             = errors.New("order is not paid")
)
