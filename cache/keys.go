package cache

import "fmt"

const (
	keyMarketsSet           = "markets:derivative"
	keyLiquidatablePositions = "liquidatable_positions"
	keyProcessingPhase       = "processing_phase"
	keyMarketsReady          = "markets_ready"
)

func marketKey(marketID string) string {
	return fmt.Sprintf("market:derivative:%s", marketID)
}

func positionKey(marketID, subaccountID string) string {
	return fmt.Sprintf("position:%s:%s", marketID, subaccountID)
}

func positionsMarketSetKey(marketID string) string {
	return fmt.Sprintf("positions:market:%s", marketID)
}

func positionsSubaccountSetKey(subaccountID string) string {
	return fmt.Sprintf("positions:subaccount:%s", subaccountID)
}

func liquidatableMember(marketID, subaccountID string) string {
	return fmt.Sprintf("%s:%s", marketID, subaccountID)
}
