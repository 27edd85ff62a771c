package models

// Severity 告警严重级别（有序：normal < mild < moderate < severe < critical）
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityCritical Severity = "critical"
)

// severityRanks 级别序号（用于比较）
var severityRanks = map[Severity]int{
	SeverityNormal:   0,
	SeverityMild:     1,
	SeverityModerate: 2,
	SeveritySevere:   3,
	SeverityCritical: 4,
}

// Rank 返回级别序号，未知级别返回 -1
func (s Severity) Rank() int {
	if rank, ok := severityRanks[s]; ok {
		return rank
	}
	return -1
}

// IsValid 检查级别是否合法
func (s Severity) IsValid() bool {
	return s.Rank() >= 0
}

func (s Severity) String() string {
	return string(s)
}
