package domain

// SpreadAnalysisResult is the best cross-broker pairing found in a snapshot.
type SpreadAnalysisResult struct {
	BestBid         Quote
	BestAsk         Quote
	InvertedSpread  float64
	AvailableVolume float64
	TargetVolume    float64
	TargetProfit    float64
}
