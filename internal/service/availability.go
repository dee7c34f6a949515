package service

import "github.com/noah-isme/sma-substitute-api/internal/models"

// Available filters pool down to the teachers with no lesson booked at slot, keeping pool order.
// An invalid slot or an empty pool yields an empty, non-nil result.
func Available(slot models.Slot, periods int, pool []string, idx models.TeacherIndex) []string {
	free := make([]string, 0, len(pool))
	if !slot.Valid(periods) {
		return free
	}
	for _, teacher := range pool {
		if idx.Busy(teacher, slot) {
			continue
		}
		free = append(free, teacher)
	}
	return free
}
