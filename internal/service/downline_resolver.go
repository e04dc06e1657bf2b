package service

import (
	"context"
	"fmt"

	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/repository"
)

// downlineNode 下线节点及其相对深度（直接子节点为 1）
type downlineNode struct {
	ID    uint
	Depth int
}

// uplineHop 向上一跳：祖先及来源所在的一侧
type uplineHop struct {
	AncestorID uint
	Side       string
	Distance   int
}

func normalizeSide(side string) (string, error) {
	switch side {
	case constants.SideLeft, constants.SideRight:
		return side, nil
	default:
		return "", ErrPlacementSideInvalid
	}
}

// ResolveSide 返回会员某一侧的全部下线（广度优先顺序）
func (s *CompensationService) ResolveSide(ctx context.Context, participantID uint, side string) ([]uint, error) {
	side, err := normalizeSide(side)
	if err != nil {
		return nil, err
	}
	participant, err := s.repo.GetParticipantByID(participantID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, ErrParticipantNotFound
	}
	nodes, err := walkSide(s.repo, participantID, side, 0)
	if err != nil {
		return nil, err
	}
	return nodeIDs(nodes), nil
}

// walkSide 遍历某一侧的下线，maxDepth 为 0 表示不限深度
// 第一跳只取指定侧的直接子节点，之后子树全部纳入。
func walkSide(repo repository.LedgerRepository, participantID uint, side string, maxDepth int) ([]downlineNode, error) {
	children, err := repo.ListChildEdges(participantID)
	if err != nil {
		return nil, err
	}
	visited := map[uint]struct{}{participantID: {}}
	queue := make([]downlineNode, 0, len(children))
	for _, edge := range children {
		if edge.Side == side {
			queue = append(queue, downlineNode{ID: edge.ParticipantID, Depth: 1})
		}
	}
	return walkFrom(repo, queue, visited, maxDepth)
}

// walkSubtree 遍历会员的整棵子树（不含自身）
func walkSubtree(repo repository.LedgerRepository, participantID uint) ([]downlineNode, error) {
	children, err := repo.ListChildEdges(participantID)
	if err != nil {
		return nil, err
	}
	visited := map[uint]struct{}{participantID: {}}
	queue := make([]downlineNode, 0, len(children))
	for _, edge := range children {
		queue = append(queue, downlineNode{ID: edge.ParticipantID, Depth: 1})
	}
	return walkFrom(repo, queue, visited, 0)
}

func walkFrom(repo repository.LedgerRepository, queue []downlineNode, visited map[uint]struct{}, maxDepth int) ([]downlineNode, error) {
	result := make([]downlineNode, 0, len(queue))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if _, seen := visited[node.ID]; seen {
			return nil, fmt.Errorf("%w: participant %d reached twice", ErrStructuralCycle, node.ID)
		}
		visited[node.ID] = struct{}{}
		result = append(result, node)

		if maxDepth > 0 && node.Depth >= maxDepth {
			continue
		}
		children, err := repo.ListChildEdges(node.ID)
		if err != nil {
			return nil, err
		}
		for _, edge := range children {
			queue = append(queue, downlineNode{ID: edge.ParticipantID, Depth: node.Depth + 1})
		}
	}
	return result, nil
}

// walkUpline 沿安置父链向上，maxHops 为 0 表示直到根节点
func walkUpline(repo repository.LedgerRepository, participantID uint, maxHops int) ([]uplineHop, error) {
	hops := make([]uplineHop, 0)
	visited := map[uint]struct{}{participantID: {}}
	current := participantID
	for distance := 1; maxHops <= 0 || distance <= maxHops; distance++ {
		edge, err := repo.GetEdge(current)
		if err != nil {
			return nil, err
		}
		if edge == nil || edge.ParentID == nil {
			break
		}
		parentID := *edge.ParentID
		if _, seen := visited[parentID]; seen {
			return nil, fmt.Errorf("%w: placement parent %d of %d revisited", ErrStructuralCycle, parentID, current)
		}
		visited[parentID] = struct{}{}
		hops = append(hops, uplineHop{AncestorID: parentID, Side: edge.Side, Distance: distance})
		current = parentID
	}
	return hops, nil
}

// sideOf 返回 sourceID 位于 ancestorID 的哪一侧
func sideOf(repo repository.LedgerRepository, ancestorID, sourceID uint) (string, error) {
	hops, err := walkUpline(repo, sourceID, 0)
	if err != nil {
		return "", err
	}
	for _, hop := range hops {
		if hop.AncestorID == ancestorID {
			return hop.Side, nil
		}
	}
	return "", ErrNotInDownline
}

func nodeIDs(nodes []downlineNode) []uint {
	ids := make([]uint, 0, len(nodes))
	for _, node := range nodes {
		ids = append(ids, node.ID)
	}
	return ids
}
