package services

import (
	"errors"
	"log"
	"strings"

	"coin-reward-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskService manages task definitions. Creation and deletion are
// admin-only (enforced by the route group); listing is public.
type TaskService struct {
	DB *gorm.DB
}

func NewTaskService(db *gorm.DB) *TaskService {
	return &TaskService{DB: db}
}

// AddTask creates a new task definition.
func (s *TaskService) AddTask(title, description, link string, reward int64) (*models.Task, error) {
	task := &models.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Link:        link,
		Reward:      reward,
	}
	if err := s.DB.Create(task).Error; err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes a task. Past submissions keep referencing the id;
// they simply pay nothing if approved afterwards.
func (s *TaskService) DeleteTask(taskID string) error {
	res := s.DB.Where("id = ?", taskID).Delete(&models.Task{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// TaskPage is one page of task definitions, newest first.
type TaskPage struct {
	Tasks   []models.Task `json:"tasks"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
	Total   int64         `json:"total"`
}

// GetTasks returns a page of tasks. Page size is clamped to 1..50.
func (s *TaskService) GetTasks(page, perPage int) (*TaskPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 50 {
		perPage = 10
	}

	var total int64
	if err := s.DB.Model(&models.Task{}).Count(&total).Error; err != nil {
		return nil, err
	}

	var tasks []models.Task
	if err := s.DB.Order("created_at DESC").
		Limit(perPage).Offset((page - 1) * perPage).
		Find(&tasks).Error; err != nil {
		return nil, err
	}

	return &TaskPage{Tasks: tasks, Page: page, PerPage: perPage, Total: total}, nil
}

// --- WebApp endpoints ---

// GetTasksEndpoint serves the paginated public task list.
func (s *TaskService) GetTasksEndpoint(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	perPage := c.QueryInt("per_page", 10)

	result, err := s.GetTasks(page, perPage)
	if err != nil {
		log.Printf("DB error fetching tasks: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "failed to fetch tasks"})
	}
	return c.JSON(fiber.Map{
		"ok":       true,
		"tasks":    result.Tasks,
		"page":     result.Page,
		"per_page": result.PerPage,
		"total":    result.Total,
	})
}

// AddTaskEndpoint creates a task (admin only).
func (s *TaskService) AddTaskEndpoint(c *fiber.Ctx) error {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Link        string `json:"link"`
		Reward      int64  `json:"reward"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "invalid request body"})
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || req.Reward <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "title and positive reward required"})
	}

	task, err := s.AddTask(req.Title, strings.TrimSpace(req.Description), strings.TrimSpace(req.Link), req.Reward)
	if err != nil {
		log.Printf("DB error creating task: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "failed to create task"})
	}
	return c.JSON(fiber.Map{"ok": true, "task_id": task.ID})
}

// DeleteTaskEndpoint removes a task (admin only).
func (s *TaskService) DeleteTaskEndpoint(c *fiber.Ctx) error {
	var req struct {
		TaskID string `json:"task_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.TaskID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"ok": false, "error": "task_id required"})
	}

	err := s.DeleteTask(req.TaskID)
	if errors.Is(err, ErrTaskNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"ok": false, "error": "task not found"})
	}
	if err != nil {
		log.Printf("DB error deleting task %s: %v", req.TaskID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false, "error": "failed to delete task"})
	}
	return c.JSON(fiber.Map{"ok": true})
}
