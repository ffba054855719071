package learning

import "net/url"

// DashboardLink is where students are sent when there is nothing to do.
const DashboardLink = "/dashboard"

// CourseLink returns the course page path.
func CourseLink(courseID string) string {
	return "/courses/" + url.PathEscape(courseID)
}

// TopicLink returns the topic page path.
func TopicLink(topicID string) string {
	return "/topics/" + url.PathEscape(topicID)
}

// QuizLink returns the quiz page path.
func QuizLink(quizID string) string {
	return "/quizzes/" + url.PathEscape(quizID)
}
