package core

import "fmt"

// Storage classes the cost model prices.
const (
	StorageClassStandard   = "standard"
	StorageClassInfrequent = "infrequent_access"
	StorageClassArchive    = "archive"
)

// perGBMonthUSD is the monthly price per stored GB by storage class.
var perGBMonthUSD = map[string]float64{
	StorageClassStandard:   0.023,
	StorageClassInfrequent: 0.0125,
	StorageClassArchive:    0.004,
}

// perThousandRequestsUSD is the PUT-request price applied to the file count.
const perThousandRequestsUSD = 0.005

// CostEstimate projects monthly storage cost from an assessment's totals.
type CostEstimate struct {
	StorageClass    string  `json:"storage_class"`
	TotalBytes      int64   `json:"total_bytes"`
	TotalFiles      int64   `json:"total_files"`
	StorageUSD      float64 `json:"storage_usd_month"`
	RequestsUSD     float64 `json:"requests_usd"`
	TotalUSDMonthly float64 `json:"total_usd_month"`
}

// EstimateCost is a pure function over byte and file totals; it holds no
// state and can be recomputed at any time.
func EstimateCost(totalBytes, totalFiles int64, storageClass string) (*CostEstimate, error) {
	rate, ok := perGBMonthUSD[storageClass]
	if !ok {
		return nil, fmt.Errorf("unknown storage class %q: %w", storageClass, ErrValidation)
	}
	if totalBytes < 0 || totalFiles < 0 {
		return nil, fmt.Errorf("totals must be non-negative: %w", ErrValidation)
	}

	gb := float64(totalBytes) / (1024 * 1024 * 1024)
	storageUSD := gb * rate
	requestsUSD := float64(totalFiles) / 1000 * perThousandRequestsUSD

	return &CostEstimate{
		StorageClass:    storageClass,
		TotalBytes:      totalBytes,
		TotalFiles:      totalFiles,
		StorageUSD:      storageUSD,
		RequestsUSD:     requestsUSD,
		TotalUSDMonthly: storageUSD + requestsUSD,
	}, nil
}
