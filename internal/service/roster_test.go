package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderTeachersRosterFirst(t *testing.T) {
	known := []string{"林老師", "王小明", "陳老師", "李大華"}
	roster := []string{"陳老師", "新進老師", "王小明"}

	assert.Equal(t, []string{"陳老師", "新進老師", "王小明", "李大華", "林老師"}, OrderTeachers(known, roster))
}

func TestOrderTeachersDropsBlankAndRepeatedRosterNames(t *testing.T) {
	roster := []string{" 陳老師 ", "", "陳老師", "  "}

	assert.Equal(t, []string{"陳老師", "王小明"}, OrderTeachers([]string{"王小明", "陳老師"}, roster))
}

func TestOrderTeachersWithoutRosterSortsByName(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, OrderTeachers([]string{"c", "a", "b"}, nil))
	assert.Equal(t, []string{"a"}, OrderTeachers(nil, []string{"a"}))
	assert.Empty(t, OrderTeachers(nil, nil))
}
