package models

import "time"

// PlacementEdge 二叉安置关系，每个会员至多一条
type PlacementEdge struct {
	ID            uint      `gorm:"primarykey" json:"id"`                                        // 主键
	ParticipantID uint      `gorm:"not null;uniqueIndex" json:"participant_id"`                  // 会员ID
	ParentID      *uint     `gorm:"index:idx_placement_parent_side" json:"parent_id"`            // 安置父节点ID（根节点为空）
	Side          string    `gorm:"type:varchar(8);index:idx_placement_parent_side" json:"side"` // 安置方向 left/right
	Level         int       `gorm:"not null;default:0" json:"level"`                             // 深度
	Orphaned      bool      `gorm:"not null;default:false;index" json:"orphaned"`                // 根节点被移除后待人工挂接
	CreatedAt     time.Time `json:"created_at"`                                                  // 创建时间
	UpdatedAt     time.Time `json:"updated_at"`                                                  // 更新时间
}

// TableName 指定表名
func (PlacementEdge) TableName() string {
	return "placement_edges"
}
