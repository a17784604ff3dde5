package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// FDA lots roll over every 25,000 kg of cumulative net weight after the
// first 26,000 kg, up to lot 80.
const (
	fdaFirstLimit = 26000.0
	fdaStep       = 25000.0
	fdaMaxLot     = 80
)

var basicLotPattern = regexp.MustCompile(`^[A-Z]{3}\d{3}$`)

// FDALot returns the FDA lot number for a cumulative net weight.
func FDALot(cumulativeNet float64) int {
	if cumulativeNet < fdaFirstLimit {
		return 1
	}
	n := 2 + int((cumulativeNet-fdaFirstLimit)/fdaStep)
	if n > fdaMaxLot {
		n = fdaMaxLot
	}
	return n
}

// FDACode formats an FDA lot as "L001".
func FDACode(lot int) string {
	return fmt.Sprintf("L%03d", lot)
}

// ResolveFDA returns the FDA code for a receiving record. Basic lots shaped
// like "ABC123" derive it from the cumulative net weight including this
// record; any other lot keeps the operator-supplied code.
func ResolveFDA(basicLot string, cumulativeNet float64, supplied string) string {
	if basicLotPattern.MatchString(basicLot) {
		return FDACode(FDALot(cumulativeNet))
	}
	return supplied
}

// LotLabels builds the lote_fda and lote_sap labels of a receiving record.
func LotLabels(basicLot, fda, containerSKU string) (lotFDA, lotSAP string) {
	basicLot = strings.ToUpper(strings.TrimSpace(basicLot))
	lotFDA = basicLot + fda
	lotSAP = lotFDA + "-" + containerSKU
	return lotFDA, lotSAP
}

// IsMSCLot reports whether a lot is MSC certified. Certified lots start with M.
func IsMSCLot(lot string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(lot)), "M")
}
