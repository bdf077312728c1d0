package services

import (
	"fmt"
	"testing"

	"coin-reward-system/models"

	"github.com/stretchr/testify/require"
)

func TestAddAndDeleteTask(t *testing.T) {
	db := testDB(t)
	svc := NewTaskService(db)

	task, err := svc.AddTask("Join channel", "Join and screenshot", "https://t.me/x", 50)
	require.NoError(t, err)
	require.NotEmpty(t, task.ID)

	var stored models.Task
	require.NoError(t, db.Where("id = ?", task.ID).First(&stored).Error)
	require.Equal(t, "Join channel", stored.Title)
	require.EqualValues(t, 50, stored.Reward)

	require.NoError(t, svc.DeleteTask(task.ID))
	require.ErrorIs(t, svc.DeleteTask(task.ID), ErrTaskNotFound)
}

func TestGetTasksPagination(t *testing.T) {
	db := testDB(t)
	svc := NewTaskService(db)

	for i := 0; i < 15; i++ {
		_, err := svc.AddTask(fmt.Sprintf("Task %d", i), "", "", 10)
		require.NoError(t, err)
	}

	page, err := svc.GetTasks(1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 15, page.Total)
	require.Len(t, page.Tasks, 10)

	page, err = svc.GetTasks(2, 10)
	require.NoError(t, err)
	require.Len(t, page.Tasks, 5)

	// Out-of-range parameters are clamped to the defaults.
	page, err = svc.GetTasks(-1, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, page.Page)
	require.Equal(t, 10, page.PerPage)
}
