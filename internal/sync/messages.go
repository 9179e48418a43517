package sync

import (
	"fmt"

	"github.com/ortaizi/sync-service/internal/domain"
)

// User-facing phase messages, Hebrew first like the rest of the product.
var (
	msgStarting    = domain.Message{He: "מתחיל סנכרון נתונים", En: "Starting data synchronization"}
	msgPreparing   = domain.Message{He: "מכין את מסד הנתונים", En: "Preparing storage"}
	msgFetching    = domain.Message{He: "טוען רשימת קורסים", En: "Fetching course list"}
	msgClassifying = domain.Message{He: "ממיין נתונים לקטגוריות", En: "Classifying data"}
	msgSaving      = domain.Message{He: "מעבד ושומר נתונים", En: "Processing and storing data"}
	msgCompleted   = domain.Message{He: "סנכרון הושלם בהצלחה", En: "Synchronization completed successfully"}
	msgTimeout     = domain.Message{He: "הסנכרון חרג ממגבלת הזמן", En: "Synchronization timed out"}
)

func msgAnalyzing(done, total int) domain.Message {
	return domain.Message{
		He: fmt.Sprintf("מנתח קורס %d מתוך %d", done, total),
		En: fmt.Sprintf("Analyzing course %d of %d", done, total),
	}
}

func msgFailed(cause string) domain.Message {
	return domain.Message{
		He: fmt.Sprintf("סנכרון נכשל: %s", cause),
		En: fmt.Sprintf("Sync failed: %s", cause),
	}
}
